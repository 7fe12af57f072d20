package entity

// CompressionResult describes the file handed to the uploader. Simulated means
// no re-encode happened and OutputPath is the input path.
type CompressionResult struct {
	InputPath               string
	OutputPath              string
	OutputSizeBytes         int64
	OriginalSizeBytes       int64
	CompressionRatioPercent int
	Simulated               bool
}

// PassThrough builds a simulated result for the given file.
func PassThrough(path string, size int64) CompressionResult {
	return CompressionResult{
		InputPath:         path,
		OutputPath:        path,
		OutputSizeBytes:   size,
		OriginalSizeBytes: size,
		Simulated:         true,
	}
}

// RatioPercent is the space saved by compression, rounded to a whole percent.
func RatioPercent(original, output int64) int {
	if original <= 0 || output >= original {
		return 0
	}
	return int((float64(original-output)/float64(original))*100 + 0.5)
}
