package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	logx "github.com/wapuda/vidfetch/internal/logs"
)

// Request is one pipeline run.
type Request struct {
	URL    string
	Title  string
	Format Format
	Trim   *TrimWindow
	Dir    string // scratch directory owned by the caller
}

// Pipeline downloads, optionally trims and thumbnails a video.
type Pipeline struct {
	extractor  Extractor
	transcoder Transcoder
}

func NewPipeline(extractor Extractor, transcoder Transcoder) *Pipeline {
	return &Pipeline{extractor: extractor, transcoder: transcoder}
}

// Catalog is the metadata-only lookup used before a format is chosen.
func (p *Pipeline) Catalog(ctx context.Context, url string) (*Catalog, error) {
	return p.extractor.Catalog(ctx, url)
}

// Run executes fetch, trim, thumbnail and size steps. The caller removes req.Dir.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Artifact, error) {
	l := logx.FromCtx(ctx)
	name := SafeFilename(req.Title)

	src, err := p.extractor.Download(ctx, DownloadRequest{
		URL:    req.URL,
		Format: req.Format,
		Dir:    req.Dir,
		Name:   name,
	})
	if err != nil {
		return nil, err
	}
	l.Info().Str("file", filepath.Base(src)).Str("format", req.Format.ID).Msg("download finished")

	art := &Artifact{Title: req.Title, Path: src, Source: src}

	if req.Trim != nil {
		w := *req.Trim
		if !w.Valid() {
			return nil, fmt.Errorf("%w: invalid window %s", ErrTrim, w)
		}
		out := filepath.Join(req.Dir, "trimmed_"+name+".mp4")
		if err := p.transcoder.Cut(ctx, src, out, w); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTrim, err)
		}
		art.Path = out
		art.Trim = &w
		l.Info().Str("window", w.String()).Msg("trimmed")
	}

	if d, err := p.transcoder.Probe(ctx, art.Path); err != nil {
		l.Warn().Err(err).Msg("probe failed; duration unknown")
	} else {
		art.Duration = d
	}

	thumb, err := p.thumbnail(ctx, art, req.Dir, name)
	if err != nil {
		art.ThumbErr = err
		l.Warn().Err(err).Msg("thumbnail skipped")
	} else {
		art.Thumbnail = thumb
	}

	st, err := os.Stat(art.Path)
	if err != nil {
		return nil, fmt.Errorf("stat result: %w", err)
	}
	art.Size = st.Size()
	return art, nil
}

// ThumbOffset is where the cover frame is taken: one second in, or the first
// frame for clips of a second or less.
func ThumbOffset(d time.Duration) time.Duration {
	if d > time.Second {
		return time.Second
	}
	return 0
}

func (p *Pipeline) thumbnail(ctx context.Context, art *Artifact, dir, name string) (*Thumbnail, error) {
	frame := filepath.Join(dir, "frame_"+name+".png")
	if err := p.transcoder.Frame(ctx, art.Path, frame, ThumbOffset(art.Duration)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrThumbnail, err)
	}
	out := filepath.Join(dir, "thumb_"+name+".jpg")
	if err := scaleToJPEG(frame, out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrThumbnail, err)
	}
	return &Thumbnail{Path: out}, nil
}
