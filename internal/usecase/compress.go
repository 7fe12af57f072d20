package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/entity"
	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/port"
	"github.com/qwerty-development/car-marketplace-sub003/internal/infra/metrics"
	"go.uber.org/zap"
)

const compressedFileName = "compressed.mp4"

// Compressor re-encodes large assets to cut transfer size. Compression is
// best effort: every failure except cancellation of the caller falls back to
// the original file.
type Compressor struct {
	encoder port.VideoEncoder
	logger  *zap.Logger
}

func NewCompressor(encoder port.VideoEncoder, logger *zap.Logger) *Compressor {
	return &Compressor{encoder: encoder, logger: logger}
}

// Compress writes its output into workDir. onProgress receives 0-100. The
// returned error is non-nil only when ctx itself is done.
func (c *Compressor) Compress(
	ctx context.Context,
	asset *entity.ValidatedAsset,
	policy entity.Policy,
	workDir string,
	onProgress func(percent int),
) (entity.CompressionResult, error) {
	report := monotonic(onProgress)
	log := c.logger.With(zap.String("path", asset.LocalPath))

	if asset.SizeKnown && asset.SizeBytes <= policy.CompressionSkipThresholdBytes {
		report(100)
		metrics.CompressionTotal.WithLabelValues("skipped").Inc()
		return entity.PassThrough(asset.LocalPath, fileSize(asset.LocalPath, asset.SizeBytes)), nil
	}

	result, err := c.encode(ctx, asset, policy, workDir, report)
	if err != nil {
		if ctx.Err() != nil {
			return entity.CompressionResult{}, ctx.Err()
		}
		log.Warn("compression failed, using original", zap.Error(err))
		metrics.CompressionTotal.WithLabelValues("fallback").Inc()
		_ = os.Remove(filepath.Join(workDir, compressedFileName))
		report(100)
		return entity.PassThrough(asset.LocalPath, fileSize(asset.LocalPath, asset.SizeBytes)), nil
	}

	report(100)
	metrics.CompressionTotal.WithLabelValues("compressed").Inc()
	metrics.CompressionRatio.Observe(float64(result.CompressionRatioPercent))
	log.Info("clip compressed",
		zap.Int64("original_bytes", result.OriginalSizeBytes),
		zap.Int64("output_bytes", result.OutputSizeBytes),
		zap.Int("ratio_percent", result.CompressionRatioPercent),
	)
	return result, nil
}

func (c *Compressor) encode(
	ctx context.Context,
	asset *entity.ValidatedAsset,
	policy entity.Policy,
	workDir string,
	report func(int),
) (entity.CompressionResult, error) {
	// LocalPath was resolved and confined to the media root by the validator.
	input := asset.LocalPath
	if input == "" {
		return entity.CompressionResult{}, &entity.CompressionError{Err: errors.New("asset has no local path")}
	}

	encCtx := ctx
	if policy.CompressionTimeout > 0 {
		var cancel context.CancelFunc
		encCtx, cancel = context.WithTimeout(ctx, policy.CompressionTimeout)
		defer cancel()
	}

	target := filepath.Join(workDir, compressedFileName)
	opts := port.EncodeOptions{
		MaxDimension: policy.MaxDimension,
		SourceWidth:  asset.Width,
		SourceHeight: asset.Height,
		DurationMs:   asset.DurationMs,
	}
	err := c.encoder.Encode(encCtx, input, target, opts, func(frac float64) {
		report(int(frac * 100))
	})
	if err != nil {
		return entity.CompressionResult{}, &entity.CompressionError{Err: err}
	}

	output := target
	outInfo, err := os.Stat(output)
	if err != nil {
		return entity.CompressionResult{}, &entity.CompressionError{Err: fmt.Errorf("stat output: %w", err)}
	}
	if !outInfo.Mode().IsRegular() {
		return entity.CompressionResult{}, &entity.CompressionError{Err: fmt.Errorf("output %s is not a regular file", output)}
	}
	original := fileSize(input, asset.SizeBytes)
	if original <= 0 {
		return entity.CompressionResult{}, &entity.CompressionError{Err: errors.New("original size unknown")}
	}
	if outInfo.Size() > original {
		return entity.CompressionResult{}, &entity.CompressionError{
			Err: fmt.Errorf("output %d bytes larger than input %d bytes", outInfo.Size(), original),
		}
	}

	return entity.CompressionResult{
		InputPath:               input,
		OutputPath:              output,
		OutputSizeBytes:         outInfo.Size(),
		OriginalSizeBytes:       original,
		CompressionRatioPercent: entity.RatioPercent(original, outInfo.Size()),
	}, nil
}

// fileSize stats path, falling back to hint when the file cannot be stat'ed.
func fileSize(path string, hint int64) int64 {
	if info, err := os.Stat(path); err == nil {
		return info.Size()
	}
	return hint
}

// monotonic clamps reports to 0-100 and drops values that do not advance.
func monotonic(fn func(int)) func(int) {
	last := -1
	return func(p int) {
		if p < 0 {
			p = 0
		}
		if p > 100 {
			p = 100
		}
		if p <= last || fn == nil {
			return
		}
		last = p
		fn(p)
	}
}
