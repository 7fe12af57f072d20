package port

import (
	"context"

	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/entity"
)

type ReviewNotifier interface {
	NotifyReview(ctx context.Context, email string, rec *entity.SubmissionRecord) error
}
