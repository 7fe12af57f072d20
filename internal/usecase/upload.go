package usecase

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/entity"
	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/port"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/metrics"
	"go.uber.org/zap"
)

// UploadCoordinator sends a clip file to object storage in a single request.
type UploadCoordinator struct {
	storage   port.ObjectStorage
	keyPrefix string
	logger    *zap.Logger
	now     func() time.Time
	token   func() string
}

// NewUploadCoordinator places every key under keyPrefix, the namespace the
// orphan sweeper is allowed to clean.
func NewUploadCoordinator(storage port.ObjectStorage, keyPrefix string, logger *zap.Logger) *UploadCoordinator {
	return &UploadCoordinator{
		storage:   storage,
		keyPrefix: keyPrefix,
		logger:    logger,
		now:       time.Now,
		token:     randomToken,
	}
}

// ObjectKey formats {vehicleID}/{epochMillis}_{token}.{ext}.
func ObjectKey(vehicleID string, at time.Time, token, ext string) string {
	return fmt.Sprintf("%s/%d_%s.%s", url.PathEscape(vehicleID), at.UnixMilli(), token, ext)
}

var clipKeyPattern = regexp.MustCompile(`^[^/]+/\d+_[0-9A-Za-z]+\.(mp4|mov|m4v)$`)

// IsClipKey reports whether key (without the namespace prefix) has the
// layout produced by ObjectKey.
func IsClipKey(key string) bool {
	return clipKeyPattern.MatchString(key)
}

func (u *UploadCoordinator) NewKey(vehicleID, ext string) string {
	return u.keyPrefix + ObjectKey(vehicleID, u.now(), u.token(), ext)
}

// Upload puts the compression output under key and returns its public URL.
// Failures are returned as *entity.UploadError.
func (u *UploadCoordinator) Upload(
	ctx context.Context,
	result entity.CompressionResult,
	key string,
	timeout time.Duration,
	onProgress func(percent int),
) (string, error) {
	report := monotonic(onProgress)

	f, err := os.Open(result.OutputPath)
	if err != nil {
		return "", &entity.UploadError{Key: key, Err: fmt.Errorf("open clip: %w", err)}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", &entity.UploadError{Key: key, Err: fmt.Errorf("stat clip: %w", err)}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	publicURL, err := u.storage.Put(ctx, port.PutObjectInput{
		Key:         key,
		Body:        f,
		Size:        info.Size(),
		ContentType: contentTypeFor(result.OutputPath),
		OnProgress: func(loaded, total int64) {
			if total > 0 {
				report(int(loaded * 100 / total))
			}
		},
	})
	if err != nil {
		return "", &entity.UploadError{Key: key, Err: err}
	}

	report(100)
	metrics.UploadedBytesTotal.Add(float64(info.Size()))
	u.logger.Info("clip uploaded", zap.String("key", key), zap.Int64("bytes", info.Size()))
	return publicURL, nil
}

func contentTypeFor(path string) string {
	if mt := entity.MimeTypeFor(path); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

func randomToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
