package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/entity"
)

const (
	uniqueViolation   = "23505"
	activeParentIndex = "uq_clip_submissions_active_parent"
	submissionColumns = `id, parent_vehicle_id, owner_dealership_id, title, description,
		media_url, thumbnail_url, media_key, status, view_count, like_count,
		viewed_by, liked_by, rejection_reason, submitted_at, published_at`
)

type SubmissionRepository struct {
	pool *pgxpool.Pool
}

func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

func (r *SubmissionRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *SubmissionRepository) Insert(ctx context.Context, rec *entity.SubmissionRecord) error {
	query := `
		INSERT INTO clip_submissions (` + submissionColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`

	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.ParentVehicleID, rec.OwnerDealershipID, rec.Title, rec.Description,
		rec.MediaURL, rec.ThumbnailURL, rec.MediaKey, string(rec.Status),
		rec.ViewCount, rec.LikeCount, rec.ViewedBy, rec.LikedBy,
		rec.RejectionReason, rec.SubmittedAt, rec.PublishedAt,
	)
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == activeParentIndex {
		return r.duplicateOf(ctx, rec.ParentVehicleID)
	}
	return fmt.Errorf("insert submission: %w", err)
}

// duplicateOf reports the record that won the race on the partial index.
func (r *SubmissionRepository) duplicateOf(ctx context.Context, vehicleID string) error {
	dup := &entity.DuplicateSubmissionError{ParentVehicleID: vehicleID, ExistingStatus: entity.StatusUnderReview}
	existing, err := r.FindActiveByParent(ctx, vehicleID)
	if err == nil {
		dup.ExistingID = existing.ID.String()
		dup.ExistingStatus = existing.Status
	}
	return dup
}

func (r *SubmissionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.SubmissionRecord, error) {
	query := `SELECT ` + submissionColumns + ` FROM clip_submissions WHERE id=$1`

	rec, err := scanSubmission(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("find submission by id: %w", err)
	}
	return rec, nil
}

func (r *SubmissionRepository) FindActiveByParent(ctx context.Context, vehicleID string) (*entity.SubmissionRecord, error) {
	query := `SELECT ` + submissionColumns + `
		FROM clip_submissions
		WHERE parent_vehicle_id=$1 AND status <> 'rejected'
		ORDER BY submitted_at DESC
		LIMIT 1`

	rec, err := scanSubmission(r.pool.QueryRow(ctx, query, vehicleID))
	if err != nil {
		return nil, fmt.Errorf("find active submission: %w", err)
	}
	return rec, nil
}

func (r *SubmissionRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	from, to entity.SubmissionStatus,
	publishedAt *time.Time,
	reason string,
) error {
	query := `
		UPDATE clip_submissions SET
			status=$3, published_at=$4, rejection_reason=$5
		WHERE id=$1 AND status=$2`

	tag, err := r.pool.Exec(ctx, query, id, string(from), string(to), publishedAt, reason)
	if err != nil {
		return fmt.Errorf("update submission status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: status is no longer %s", entity.ErrInvalidTransition, from)
	}
	return nil
}

func (r *SubmissionRepository) MediaKeyExists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM clip_submissions WHERE media_key=$1)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check media key: %w", err)
	}
	return exists, nil
}

func scanSubmission(row pgx.Row) (*entity.SubmissionRecord, error) {
	rec := &entity.SubmissionRecord{}
	var status string
	err := row.Scan(
		&rec.ID, &rec.ParentVehicleID, &rec.OwnerDealershipID, &rec.Title, &rec.Description,
		&rec.MediaURL, &rec.ThumbnailURL, &rec.MediaKey, &status,
		&rec.ViewCount, &rec.LikeCount, &rec.ViewedBy, &rec.LikedBy,
		&rec.RejectionReason, &rec.SubmittedAt, &rec.PublishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entity.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Status = entity.SubmissionStatus(status)
	return rec, nil
}
