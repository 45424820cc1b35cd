package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	logx "github.com/wapuda/vidfetch/internal/logs"
)

// Transcoder performs the ffmpeg/ffprobe steps of the pipeline.
type Transcoder interface {
	// Cut copies the [w.Start, w.End] range of in into out without re-encoding.
	Cut(ctx context.Context, in, out string, w TrimWindow) error
	// Frame writes a single frame at offset to out.
	Frame(ctx context.Context, in, out string, offset time.Duration) error
	// Probe returns the container duration.
	Probe(ctx context.Context, path string) (time.Duration, error)
}

// FFmpeg runs ffmpeg and ffprobe as subprocesses.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpeg locates ffmpeg and ffprobe in PATH.
func NewFFmpeg() (*FFmpeg, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	return &FFmpeg{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}, nil
}

func (f *FFmpeg) Cut(ctx context.Context, in, out string, w TrimWindow) error {
	return f.run(ctx, "cut",
		"-y", "-hide_banner",
		"-i", in,
		"-ss", fmtSeconds(w.Start),
		"-to", fmtSeconds(w.End),
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		out,
	)
}

func (f *FFmpeg) Frame(ctx context.Context, in, out string, offset time.Duration) error {
	return f.run(ctx, "frame",
		"-y", "-hide_banner",
		"-ss", strconv.FormatFloat(offset.Seconds(), 'f', 3, 64),
		"-i", in,
		"-frames:v", "1",
		out,
	)
}

func (f *FFmpeg) Probe(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbeDuration(output)
}

func parseProbeDuration(output []byte) (time.Duration, error) {
	var parsed struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &parsed); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if parsed.Format.Duration == "" {
		return 0, fmt.Errorf("ffprobe reported no duration")
	}
	secs, err := strconv.ParseFloat(parsed.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", parsed.Format.Duration, err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// run executes ffmpeg, streaming stderr into debug logs.
func (f *FFmpeg) run(ctx context.Context, step string, args ...string) error {
	base := logx.FromCtx(ctx)
	lw := logx.NewLineWriter(base, map[string]string{"cmd": filepath.Base(f.ffmpegPath), "step": step}, zerolog.DebugLevel)

	pr, pw := io.Pipe()
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	cmd.Stderr = pw

	done := make(chan struct{})
	go func() {
		lw.Pipe(pr)
		close(done)
	}()

	err := cmd.Run()
	_ = pw.Close()
	<-done

	if err != nil {
		if last := lw.Last(); last != "" {
			return fmt.Errorf("ffmpeg %s: %w: %s", step, err, last)
		}
		return fmt.Errorf("ffmpeg %s: %w", step, err)
	}
	return nil
}
