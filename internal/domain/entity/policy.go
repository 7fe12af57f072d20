package entity

import "time"

// Policy holds the per-deployment clip limits.
type Policy struct {
	MaxDurationMs                 int64         `env:"MAX_DURATION_MS"                  envDefault:"60000"`
	MaxSizeBytes                  int64         `env:"MAX_SIZE_BYTES"                   envDefault:"104857600"`
	CompressionSkipThresholdBytes int64         `env:"COMPRESSION_SKIP_THRESHOLD_BYTES" envDefault:"2097152"`
	AllowedExtensions             []string      `env:"ALLOWED_EXTENSIONS"               envDefault:"mp4,mov" envSeparator:","`
	MaxDimension                  int           `env:"MAX_DIMENSION"                    envDefault:"1280"`
	CompressionTimeout            time.Duration `env:"COMPRESSION_TIMEOUT"              envDefault:"5m"`
	UploadTimeout                 time.Duration `env:"UPLOAD_TIMEOUT"                   envDefault:"10m"`
}

// DefaultPolicy mirrors the envDefault values above.
func DefaultPolicy() Policy {
	return Policy{
		MaxDurationMs:                 60_000,
		MaxSizeBytes:                  100 << 20,
		CompressionSkipThresholdBytes: 2 << 20,
		AllowedExtensions:             []string{"mp4", "mov"},
		MaxDimension:                  1280,
		CompressionTimeout:            5 * time.Minute,
		UploadTimeout:                 10 * time.Minute,
	}
}

func (p Policy) Allows(ext string) bool {
	for _, e := range p.AllowedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// DurationExceeded reports whether ms is over the duration limit. A
// non-positive limit disables the check.
func (p Policy) DurationExceeded(ms int64) bool {
	return p.MaxDurationMs > 0 && ms > p.MaxDurationMs
}

// SizeExceeded reports whether n bytes is over the size limit. A non-positive
// limit disables the check.
func (p Policy) SizeExceeded(n int64) bool {
	return p.MaxSizeBytes > 0 && n > p.MaxSizeBytes
}
