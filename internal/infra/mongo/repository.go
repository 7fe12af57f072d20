package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/entity"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	collectionName  = "clip_submissions"
	activeParentIdx = "uq_active_parent"
	connectTimeout  = 10 * time.Second
)

// clipDocument mirrors entity.SubmissionRecord. ActiveParentID is set only
// while the record is not rejected; a sparse unique index on it enforces one
// active clip per vehicle.
type clipDocument struct {
	ID                string     `bson:"_id"`
	ParentVehicleID   string     `bson:"parentVehicleId"`
	ActiveParentID    string     `bson:"activeParentId,omitempty"`
	OwnerDealershipID string     `bson:"ownerDealershipId"`
	Title             string     `bson:"title"`
	Description       string     `bson:"description"`
	MediaURL          string     `bson:"mediaUrl"`
	ThumbnailURL      string     `bson:"thumbnailUrl"`
	MediaKey          string     `bson:"mediaKey"`
	Status            string     `bson:"status"`
	ViewCount         int        `bson:"viewCount"`
	LikeCount         int        `bson:"likeCount"`
	ViewedBy          []string   `bson:"viewedBy"`
	LikedBy           []string   `bson:"likedBy"`
	RejectionReason   string     `bson:"rejectionReason,omitempty"`
	SubmittedAt       time.Time  `bson:"submittedAt"`
	PublishedAt       *time.Time `bson:"publishedAt,omitempty"`
}

// Connect opens a client and verifies it with a ping.
func Connect(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

type SubmissionRepository struct {
	collection *mongo.Collection
}

func NewSubmissionRepository(db *mongo.Database) *SubmissionRepository {
	return &SubmissionRepository{collection: db.Collection(collectionName)}
}

// EnsureIndexes creates the uniqueness and lookup indexes. It is idempotent.
func (r *SubmissionRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "activeParentId", Value: 1}},
			Options: options.Index().
				SetName(activeParentIdx).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"activeParentId": bson.M{"$exists": true}}),
		},
		{Keys: bson.D{{Key: "parentVehicleId", Value: 1}, {Key: "submittedAt", Value: -1}}},
		{Keys: bson.D{{Key: "mediaKey", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

func (r *SubmissionRepository) Ping(ctx context.Context) error {
	return r.collection.Database().Client().Ping(ctx, readpref.Primary())
}

func (r *SubmissionRepository) Insert(ctx context.Context, rec *entity.SubmissionRecord) error {
	_, err := r.collection.InsertOne(ctx, toDocument(rec))
	if mongo.IsDuplicateKeyError(err) {
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
	return r.findOne(ctx, bson.M{"_id": id.String()})
}

func (r *SubmissionRepository) FindActiveByParent(ctx context.Context, vehicleID string) (*entity.SubmissionRecord, error) {
	return r.findOne(ctx, bson.M{"activeParentId": vehicleID})
}

func (r *SubmissionRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	from, to entity.SubmissionStatus,
	publishedAt *time.Time,
	reason string,
) error {
	set := bson.M{"status": string(to), "rejectionReason": reason}
	update := bson.M{"$set": set}
	if publishedAt != nil {
		set["publishedAt"] = publishedAt.UTC()
	} else {
		update["$unset"] = bson.M{"publishedAt": ""}
	}
	if !to.Active() {
		unset, _ := update["$unset"].(bson.M)
		if unset == nil {
			unset = bson.M{}
		}
		unset["activeParentId"] = ""
		update["$unset"] = unset
	}

	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id.String(), "status": string(from)}, update)
	if err != nil {
		return fmt.Errorf("update submission status: %w", err)
	}
	if res.MatchedCount == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: status is no longer %s", entity.ErrInvalidTransition, from)
	}
	return nil
}

func (r *SubmissionRepository) MediaKeyExists(ctx context.Context, key string) (bool, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{"mediaKey": key}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check media key: %w", err)
	}
	return n > 0, nil
}

func (r *SubmissionRepository) findOne(ctx context.Context, filter bson.M) (*entity.SubmissionRecord, error) {
	var doc clipDocument
	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, entity.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find submission: %w", err)
	}
	return toEntity(doc)
}

func toDocument(rec *entity.SubmissionRecord) clipDocument {
	doc := clipDocument{
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
	if rec.Status.Active() {
		doc.ActiveParentID = rec.ParentVehicleID
	}
	if doc.ViewedBy == nil {
		doc.ViewedBy = []string{}
	}
	if doc.LikedBy == nil {
		doc.LikedBy = []string{}
	}
	return doc
}

func toEntity(doc clipDocument) (*entity.SubmissionRecord, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("parse id %q: %w", doc.ID, err)
	}
	rec := &entity.SubmissionRecord{
		ID:                id,
		ParentVehicleID:   doc.ParentVehicleID,
		OwnerDealershipID: doc.OwnerDealershipID,
		Title:             doc.Title,
		Description:       doc.Description,
		MediaURL:          doc.MediaURL,
		ThumbnailURL:      doc.ThumbnailURL,
		MediaKey:          doc.MediaKey,
		Status:            entity.SubmissionStatus(doc.Status),
		ViewCount:         doc.ViewCount,
		LikeCount:         doc.LikeCount,
		ViewedBy:          doc.ViewedBy,
		LikedBy:           doc.LikedBy,
		RejectionReason:   doc.RejectionReason,
		SubmittedAt:       doc.SubmittedAt.UTC(),
		PublishedAt:       doc.PublishedAt,
	}
	if rec.ViewedBy == nil {
		rec.ViewedBy = []string{}
	}
	if rec.LikedBy == nil {
		rec.LikedBy = []string{}
	}
	return rec, nil
}
