package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/entity"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type clipSubmission struct {
	ID                string    `gorm:"primaryKey"`
	ParentVehicleID   string    `gorm:"not null"`
	OwnerDealershipID string    `gorm:"not null"`
	Title             string    `gorm:"not null"`
	Description       string    `gorm:"not null;default:''"`
	MediaURL          string    `gorm:"not null"`
	ThumbnailURL      string    `gorm:"not null"`
	MediaKey          string    `gorm:"not null;index"`
	Status            string    `gorm:"not null;index"`
	ViewCount         int       `gorm:"not null;default:0"`
	LikeCount         int       `gorm:"not null;default:0"`
	ViewedBy          []string  `gorm:"serializer:json"`
	LikedBy           []string  `gorm:"serializer:json"`
	RejectionReason   string    `gorm:"not null;default:''"`
	SubmittedAt       time.Time `gorm:"not null"`
	PublishedAt       *time.Time
}

func (clipSubmission) TableName() string { return "clip_submissions" }

// Open connects to a SQLite file and migrates the clip schema, including the
// partial unique index on active records per vehicle.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sql db: %w", err)
	}
	// SQLite serializes writers anyway; one connection avoids SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&clipSubmission{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	err = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS uq_clip_submissions_active_parent
		ON clip_submissions (parent_vehicle_id) WHERE status <> 'rejected'`).Error
	if err != nil {
		return nil, fmt.Errorf("create active parent index: %w", err)
	}
	return db, nil
}

type SubmissionRepository struct {
	db *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func (r *SubmissionRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *SubmissionRepository) Insert(ctx context.Context, rec *entity.SubmissionRecord) error {
	row := toModel(rec)
	err := r.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		dup := &entity.DuplicateSubmissionError{ParentVehicleID: rec.ParentVehicleID, ExistingStatus: entity.StatusUnderReview}
		if existing, ferr := r.FindActiveByParent(ctx, rec.ParentVehicleID); ferr == nil {
			dup.ExistingID = existing.ID.String()
			dup.ExistingStatus = existing.Status
		}
		return dup
	}
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (r *SubmissionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.SubmissionRecord, error) {
	var row clipSubmission
	err := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&row).Error
	if err != nil {
		return nil, notFound(err, "find submission by id")
	}
	return toEntity(row)
}

func (r *SubmissionRepository) FindActiveByParent(ctx context.Context, vehicleID string) (*entity.SubmissionRecord, error) {
	var row clipSubmission
	err := r.db.WithContext(ctx).
		Where("parent_vehicle_id = ? AND status <> ?", vehicleID, string(entity.StatusRejected)).
		Order("submitted_at DESC").
		First(&row).Error
	if err != nil {
		return nil, notFound(err, "find active submission")
	}
	return toEntity(row)
}

func (r *SubmissionRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	from, to entity.SubmissionStatus,
	publishedAt *time.Time,
	reason string,
) error {
	res := r.db.WithContext(ctx).Model(&clipSubmission{}).
		Where("id = ? AND status = ?", id.String(), string(from)).
		Updates(map[string]any{
			"status":           string(to),
			"published_at":     publishedAt,
			"rejection_reason": reason,
		})
	if res.Error != nil {
		return fmt.Errorf("update submission status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: status is no longer %s", entity.ErrInvalidTransition, from)
	}
	return nil
}

func (r *SubmissionRepository) MediaKeyExists(ctx context.Context, key string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&clipSubmission{}).Where("media_key = ?", key).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check media key: %w", err)
	}
	return count > 0, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return entity.ErrSubmissionNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func toModel(rec *entity.SubmissionRecord) clipSubmission {
	return clipSubmission{
		ID:                rec.ID.String(),
		ParentVehicleID:   rec.ParentVehicleID,
		OwnerDealershipID: rec.OwnerDealershipID,
		Title:             rec.Title,
		Description:       rec.Description,
		MediaURL:          rec.MediaURL,
		ThumbnailURL:      rec.ThumbnailURL,
		MediaKey:          rec.MediaKey,
		Status:            string(rec.Status),
		ViewCount:         rec.ViewCount,
		LikeCount:         rec.LikeCount,
		ViewedBy:          rec.ViewedBy,
		LikedBy:           rec.LikedBy,
		RejectionReason:   rec.RejectionReason,
		SubmittedAt:       rec.SubmittedAt,
		PublishedAt:       rec.PublishedAt,
	}
}

func toEntity(row clipSubmission) (*entity.SubmissionRecord, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, fmt.Errorf("parse id %q: %w", row.ID, err)
	}
	rec := &entity.SubmissionRecord{
		ID:                id,
		ParentVehicleID:   row.ParentVehicleID,
		OwnerDealershipID: row.OwnerDealershipID,
		Title:             row.Title,
		Description:       row.Description,
		MediaURL:          row.MediaURL,
		ThumbnailURL:      row.ThumbnailURL,
		MediaKey:          row.MediaKey,
		Status:            entity.SubmissionStatus(row.Status),
		ViewCount:         row.ViewCount,
		LikeCount:         row.LikeCount,
		ViewedBy:          row.ViewedBy,
		LikedBy:           row.LikedBy,
		RejectionReason:   row.RejectionReason,
		SubmittedAt:       row.SubmittedAt.UTC(),
		PublishedAt:       row.PublishedAt,
	}
	if rec.ViewedBy == nil {
		rec.ViewedBy = []string{}
	}
	if rec.LikedBy == nil {
		rec.LikedBy = []string{}
	}
	return rec, nil
}
