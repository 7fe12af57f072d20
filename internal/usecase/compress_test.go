package usecase

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validatedClip(t *testing.T, dir string, size int64) *entity.ValidatedAsset {
	t.Helper()
	path := writeClip(t, dir, "source.mp4", size)
	return &entity.ValidatedAsset{
		MediaAsset: entity.MediaAsset{Path: path, Width: 1920, Height: 1080, DurationMs: 10000, SizeBytes: size},
		LocalPath:  path,
		Ext:        "mp4",
		SizeKnown:  true,
	}
}

func TestCompress_SkipsSmallFiles(t *testing.T) {
	dir := t.TempDir()
	asset := validatedClip(t, dir, 1_500_000)
	enc := &fakeEncoder{}
	policy := entity.DefaultPolicy()
	policy.CompressionSkipThresholdBytes = 2_000_000

	var progress []int
	result, err := NewCompressor(enc, testLogger).
		Compress(context.Background(), asset, policy, t.TempDir(), func(p int) { progress = append(progress, p) })

	require.NoError(t, err)
	assert.True(t, result.Simulated)
	assert.Equal(t, int64(1_500_000), result.OutputSizeBytes)
	assert.Equal(t, result.InputPath, result.OutputPath)
	assert.Equal(t, 0, enc.callCount())
	assert.Equal(t, []int{100}, progress)
}

func TestCompress_ReEncodesLargeFiles(t *testing.T) {
	dir := t.TempDir()
	asset := validatedClip(t, dir, 4_000_000)
	enc := &fakeEncoder{outputSize: 1_000_000, steps: []float64{0.1, 0.5, 0.4, 0.9}}
	workDir := t.TempDir()

	var progress []int
	result, err := NewCompressor(enc, testLogger).
		Compress(context.Background(), asset, entity.DefaultPolicy(), workDir, func(p int) { progress = append(progress, p) })

	require.NoError(t, err)
	assert.False(t, result.Simulated)
	assert.Equal(t, filepath.Join(workDir, compressedFileName), result.OutputPath)
	assert.Equal(t, int64(1_000_000), result.OutputSizeBytes)
	assert.Equal(t, int64(4_000_000), result.OriginalSizeBytes)
	assert.Equal(t, 75, result.CompressionRatioPercent)
	assert.LessOrEqual(t, result.OutputSizeBytes, result.OriginalSizeBytes)
	assert.Equal(t, []int{10, 50, 90, 100}, progress)
}

func TestCompress_FallsBackOnEncoderError(t *testing.T) {
	dir := t.TempDir()
	asset := validatedClip(t, dir, 4_000_000)
	enc := &fakeEncoder{err: errors.New("exit status 1"), steps: []float64{0.3}}
	workDir := t.TempDir()

	var progress []int
	result, err := NewCompressor(enc, testLogger).
		Compress(context.Background(), asset, entity.DefaultPolicy(), workDir, func(p int) { progress = append(progress, p) })

	require.NoError(t, err)
	assert.True(t, result.Simulated)
	assert.Equal(t, asset.LocalPath, result.OutputPath)
	assert.Equal(t, int64(4_000_000), result.OutputSizeBytes)
	assert.Equal(t, []int{30, 100}, progress)
	assert.NoFileExists(t, filepath.Join(workDir, compressedFileName))
}

func TestCompress_FallsBackWhenOutputGrows(t *testing.T) {
	dir := t.TempDir()
	asset := validatedClip(t, dir, 3_000_000)
	enc := &fakeEncoder{outputSize: 3_500_000}

	result, err := NewCompressor(enc, testLogger).
		Compress(context.Background(), asset, entity.DefaultPolicy(), t.TempDir(), nil)

	require.NoError(t, err)
	assert.True(t, result.Simulated)
	assert.Equal(t, int64(3_000_000), result.OutputSizeBytes)
}

func TestCompress_UnknownSizeIsCompressed(t *testing.T) {
	dir := t.TempDir()
	asset := validatedClip(t, dir, 1000)
	asset.SizeBytes = 0
	asset.SizeKnown = false
	enc := &fakeEncoder{outputSize: 500}

	result, err := NewCompressor(enc, testLogger).
		Compress(context.Background(), asset, entity.DefaultPolicy(), t.TempDir(), nil)

	require.NoError(t, err)
	assert.Equal(t, 1, enc.callCount())
	assert.False(t, result.Simulated)
	assert.Equal(t, int64(1000), result.OriginalSizeBytes)
}

func TestCompress_OutputSizeReadFromDisk(t *testing.T) {
	dir := t.TempDir()
	asset := validatedClip(t, dir, 4_000_000)
	// Hint disagrees with the file on disk.
	asset.SizeBytes = 9_000_000
	enc := &fakeEncoder{outputSize: 2_000_000}

	result, err := NewCompressor(enc, testLogger).
		Compress(context.Background(), asset, entity.DefaultPolicy(), t.TempDir(), nil)

	require.NoError(t, err)
	assert.Equal(t, int64(4_000_000), result.OriginalSizeBytes)
	assert.Equal(t, int64(2_000_000), result.OutputSizeBytes)
}

func TestCompress_CancellationIsNotSwallowed(t *testing.T) {
	dir := t.TempDir()
	asset := validatedClip(t, dir, 4_000_000)
	enc := &fakeEncoder{block: true}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCompressor(enc, testLogger).
		Compress(ctx, asset, entity.DefaultPolicy(), t.TempDir(), nil)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompress_TimeoutFallsBack(t *testing.T) {
	dir := t.TempDir()
	asset := validatedClip(t, dir, 4_000_000)
	enc := &fakeEncoder{block: true}
	policy := entity.DefaultPolicy()
	policy.CompressionTimeout = 1

	result, err := NewCompressor(enc, testLogger).
		Compress(context.Background(), asset, policy, t.TempDir(), nil)

	require.NoError(t, err)
	assert.True(t, result.Simulated)
}

func TestMonotonic(t *testing.T) {
	var got []int
	report := monotonic(func(p int) { got = append(got, p) })
	for _, p := range []int{-5, 0, 20, 10, 20, 150, 100} {
		report(p)
	}
	assert.Equal(t, []int{0, 20, 100}, got)
}

func TestFileSize(t *testing.T) {
	dir := t.TempDir()
	path := writeClip(t, dir, "a.mp4", 321)
	assert.Equal(t, int64(321), fileSize(path, 5))
	assert.Equal(t, int64(5), fileSize(filepath.Join(dir, "missing.mp4"), 5))
}
