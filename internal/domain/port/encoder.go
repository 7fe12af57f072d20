package port

import "context"

type EncodeOptions struct {
	MaxDimension int
	SourceWidth  int
	SourceHeight int
	// Method is "scale+crf" or "crf"; empty selects automatically.
	Method     string
	DurationMs int64
}

type ProbeResult struct {
	DurationMs int64
	Width      int
	Height     int
}

type VideoEncoder interface {
	Encode(ctx context.Context, inputPath, outputPath string, opts EncodeOptions, onProgress func(fraction float64)) error
}

type VideoProber interface {
	Probe(ctx context.Context, path string) (*ProbeResult, error)
}
