package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/port"
	"go.uber.org/zap"
)

const (
	MethodScaleCRF = "scale+crf"
	MethodCRF      = "crf"
)

type Encoder struct {
	binary string
	preset string
	crf    int
	logger *zap.Logger
}

func NewEncoder(binary, preset string, crf int, logger *zap.Logger) *Encoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Encoder{binary: binary, preset: preset, crf: crf, logger: logger}
}

func (e *Encoder) Encode(ctx context.Context, inputPath, outputPath string, opts port.EncodeOptions, onProgress func(float64)) error {
	method := SelectMethod(opts)
	args := e.buildArgs(inputPath, outputPath, method, opts.MaxDimension)

	cmd := exec.CommandContext(ctx, e.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	e.logger.Debug("ffmpeg encode started",
		zap.String("input", inputPath),
		zap.String("method", method),
	)

	readProgress(stdout, opts.DurationMs, onProgress)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg error: %w, output: %s", err, tail(stderr.String(), 512))
	}
	return nil
}

// SelectMethod picks a downscale when the source is larger than the target
// dimension, otherwise a plain CRF re-encode.
func SelectMethod(opts port.EncodeOptions) string {
	if opts.Method != "" {
		return opts.Method
	}
	if opts.MaxDimension > 0 && (opts.SourceWidth > opts.MaxDimension || opts.SourceHeight > opts.MaxDimension) {
		return MethodScaleCRF
	}
	return MethodCRF
}

func (e *Encoder) buildArgs(inputPath, outputPath, method string, maxDim int) []string {
	args := []string{"-y", "-i", inputPath, "-nostats", "-progress", "pipe:1"}
	if method == MethodScaleCRF && maxDim > 0 {
		args = append(args, "-vf", scaleFilter(maxDim))
	}
	args = append(args,
		"-c:v", "libx264", "-preset", e.preset, "-crf", strconv.Itoa(e.crf),
		"-pix_fmt", "yuv420p",
		"-c:a", "aac", "-b:a", "128k",
		"-movflags", "+faststart",
		outputPath,
	)
	return args
}

// scaleFilter bounds the longer side to maxDim and keeps the aspect ratio
// with even dimensions. Smaller sources are never upscaled.
func scaleFilter(maxDim int) string {
	return fmt.Sprintf("scale='if(gt(iw,ih),min(%[1]d,iw),-2)':'if(gt(iw,ih),-2,min(%[1]d,ih))'", maxDim)
}

func readProgress(r io.Reader, durationMs int64, onProgress func(float64)) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		frac, ok := parseProgressLine(sc.Text(), durationMs)
		if ok && onProgress != nil {
			onProgress(frac)
		}
	}
	// drain so ffmpeg never blocks on a full pipe
	_, _ = io.Copy(io.Discard, r)
}

// parseProgressLine understands the key=value lines written by -progress.
// out_time_us is in microseconds; progress=end marks completion.
func parseProgressLine(line string, durationMs int64) (float64, bool) {
	key, value, found := strings.Cut(strings.TrimSpace(line), "=")
	if !found {
		return 0, false
	}
	switch key {
	case "progress":
		if value == "end" {
			return 1, true
		}
	case "out_time_us", "out_time_ms":
		if durationMs <= 0 {
			return 0, false
		}
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			return 0, false
		}
		frac := float64(us) / float64(durationMs*1000)
		if frac > 1 {
			frac = 1
		}
		return frac, true
	}
	return 0, false
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
