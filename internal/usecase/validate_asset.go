package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/entity"
	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/port"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/metrics"
	"go.uber.org/zap"
)

// AssetValidator checks a picked file against the clip policy before any
// compression or upload work starts.
type AssetValidator struct {
	resolver port.LocatorResolver
	prober   port.VideoProber
	logger   *zap.Logger
}

// NewAssetValidator builds a validator. prober may be nil, in which case an
// asset without a duration hint is not duration-checked.
func NewAssetValidator(resolver port.LocatorResolver, prober port.VideoProber, logger *zap.Logger) *AssetValidator {
	return &AssetValidator{resolver: resolver, prober: prober, logger: logger}
}

// Validate runs the checks in order and stops at the first failure:
// locator, duration, size, extension, readability.
func (v *AssetValidator) Validate(ctx context.Context, asset entity.MediaAsset, policy entity.Policy) (*entity.ValidatedAsset, error) {
	out, err := v.validate(ctx, asset, policy)
	if err != nil {
		var verr *entity.ValidationError
		if errors.As(err, &verr) {
			metrics.ValidationFailuresTotal.WithLabelValues(string(verr.Kind)).Inc()
		}
		return nil, err
	}
	return out, nil
}

func (v *AssetValidator) validate(ctx context.Context, asset entity.MediaAsset, policy entity.Policy) (*entity.ValidatedAsset, error) {
	localPath, err := v.resolver.Resolve(asset.Path)
	if err != nil {
		return nil, entity.NewValidationError(entity.KindFileUnavailable, fmt.Errorf("resolve %q: %w", asset.Path, err))
	}

	durationMs := asset.DurationMs
	if durationMs <= 0 && v.prober != nil {
		if probe, err := v.prober.Probe(ctx, localPath); err == nil {
			durationMs = probe.DurationMs
		} else {
			v.logger.Debug("duration probe failed", zap.String("path", localPath), zap.Error(err))
		}
	}
	if policy.DurationExceeded(durationMs) {
		return nil, entity.NewValidationError(entity.KindDurationExceeded,
			fmt.Errorf("duration %dms exceeds %dms", durationMs, policy.MaxDurationMs))
	}

	// The size hint is only used when the file cannot be stat'ed.
	size := asset.SizeBytes
	if info, err := os.Stat(localPath); err == nil && info.Mode().IsRegular() {
		if size > 0 && size != info.Size() {
			v.logger.Debug("size hint disagrees with file",
				zap.String("path", localPath), zap.Int64("hint", size), zap.Int64("actual", info.Size()))
		}
		size = info.Size()
	}
	sizeKnown := size > 0
	if sizeKnown && policy.SizeExceeded(size) {
		return nil, entity.NewValidationError(entity.KindSizeExceeded,
			fmt.Errorf("size %d bytes exceeds %d bytes", size, policy.MaxSizeBytes))
	}

	ext := entity.Extension(localPath)
	if ext == "" || !policy.Allows(ext) {
		return nil, entity.NewValidationError(entity.KindUnsupportedFormat,
			fmt.Errorf("extension %q not allowed", ext))
	}

	if err := checkReadable(localPath); err != nil {
		return nil, entity.NewValidationError(entity.KindFileUnavailable, err)
	}

	asset.DurationMs = durationMs
	asset.SizeBytes = size
	asset.MimeType = entity.MimeTypeFor(localPath)

	return &entity.ValidatedAsset{
		MediaAsset: asset,
		LocalPath:  localPath,
		Ext:        ext,
		SizeKnown:  sizeKnown,
	}, nil
}

func checkReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	return nil
}
