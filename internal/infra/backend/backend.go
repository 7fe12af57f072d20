// Package backend opens the storage and metadata implementations selected
// by configuration.
package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/port"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/config"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/metrics"
	miniostorage "github.com/qwerty-development/car-marketplace-sub003/internal/infra/minio"
	mongorepo "github.com/qwerty-development/car-marketplace-sub003/internal/infra/mongo"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/postgres"
	s3storage "github.com/qwerty-development/car-marketplace-sub003/internal/infra/s3"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/sqlite"
	"go.uber.org/zap"
)

// Repository is a metadata store with its readiness probe and closer.
type Repository struct {
	port.SubmissionRepository
	Health metrics.HealthCheck
	Close  func()
}

func OpenRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Repository, error) {
	switch cfg.MetadataBackend {
	case config.MetadataPostgres:
		if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		repo := postgres.NewSubmissionRepository(pool)
		logger.Info("metadata backend ready", zap.String("backend", cfg.MetadataBackend))
		return &Repository{
			SubmissionRepository: repo,
			Health:               metrics.HealthCheck{Name: "postgres", Check: repo.Ping},
			Close:                pool.Close,
		}, nil

	case config.MetadataSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		repo := sqlite.NewSubmissionRepository(db)
		logger.Info("metadata backend ready", zap.String("backend", cfg.MetadataBackend), zap.String("path", cfg.SQLitePath))
		return &Repository{
			SubmissionRepository: repo,
			Health:               metrics.HealthCheck{Name: "sqlite", Check: repo.Ping},
			Close: func() {
				if sqlDB, err := db.DB(); err == nil {
					sqlDB.Close()
				}
			},
		}, nil

	case config.MetadataMongo:
		client, err := mongorepo.Connect(cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		repo := mongorepo.NewSubmissionRepository(client.Database(cfg.MongoDatabase))
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		logger.Info("metadata backend ready", zap.String("backend", cfg.MetadataBackend))
		return &Repository{
			SubmissionRepository: repo,
			Health:               metrics.HealthCheck{Name: "mongo", Check: repo.Ping},
			Close:                func() { _ = client.Disconnect(context.Background()) },
		}, nil
	}
	return nil, fmt.Errorf("unknown metadata backend %q", cfg.MetadataBackend)
}

// Storage is an object store with its readiness probe.
type Storage struct {
	port.ObjectStorage
	Health metrics.HealthCheck
}

func OpenStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Storage, error) {
	switch cfg.StorageBackend {
	case config.StorageMinIO:
		store, err := miniostorage.NewStorage(miniostorage.StorageConfig{
			Endpoint:      cfg.MinIOEndpoint,
			AccessKey:     cfg.MinIOAccessKey,
			SecretKey:     cfg.MinIOSecretKey,
			UseSSL:        cfg.MinIOUseSSL,
			Region:        cfg.MinIORegion,
			Bucket:        cfg.MinIOBucket,
			PublicBaseURL: cfg.MinIOPublicBaseURL,
			PublicRead:    cfg.MinIOPublicRead,
			KeyPrefix:     cfg.StorageKeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure minio bucket: %w", err)
		}
		logger.Info("storage backend ready", zap.String("backend", cfg.StorageBackend), zap.String("bucket", cfg.MinIOBucket))
		return &Storage{ObjectStorage: store, Health: metrics.HealthCheck{Name: "minio", Check: store.Ping}}, nil

	case config.StorageS3:
		store, err := s3storage.NewStorage(ctx, s3storage.StorageConfig{
			Region:        cfg.S3Region,
			Bucket:        cfg.S3Bucket,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Endpoint:      cfg.S3Endpoint,
			PublicBaseURL: cfg.S3PublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("storage backend ready", zap.String("backend", cfg.StorageBackend), zap.String("bucket", cfg.S3Bucket))
		return &Storage{ObjectStorage: store, Health: metrics.HealthCheck{Name: "s3", Check: store.Ping}}, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}
