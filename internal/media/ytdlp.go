package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
)

// Extractor lists formats for a URL and downloads one of them.
type Extractor interface {
	Catalog(ctx context.Context, url string) (*Catalog, error)
	Download(ctx context.Context, req DownloadRequest) (string, error)
}

// DownloadRequest describes one fetch into a scratch directory.
type DownloadRequest struct {
	URL    string
	Format Format
	Dir    string
	Name   string // file stem, already sanitized
}

// YTDLPConfig holds the extractor options applied to every download.
type YTDLPConfig struct {
	SocketTimeout time.Duration
	RateLimit     string // yt-dlp syntax, e.g. "10M"
	MergeFormat   string // container for merged streams
}

// YTDLP drives the yt-dlp binary through go-ytdlp.
type YTDLP struct {
	cfg YTDLPConfig
}

// NewYTDLP creates an extractor. Zero fields fall back to the defaults below.
func NewYTDLP(cfg YTDLPConfig) *YTDLP {
	if cfg.SocketTimeout <= 0 {
		cfg.SocketTimeout = 1200 * time.Second
	}
	if cfg.RateLimit == "" {
		cfg.RateLimit = "10M"
	}
	if cfg.MergeFormat == "" {
		cfg.MergeFormat = "mp4"
	}
	return &YTDLP{cfg: cfg}
}

// ytdlpInfo mirrors the subset of `yt-dlp -J` output we read.
type ytdlpInfo struct {
	Title    string        `json:"title"`
	Duration float64       `json:"duration"`
	Formats  []ytdlpFormat `json:"formats"`
}

type ytdlpFormat struct {
	FormatID       string  `json:"format_id"`
	Ext            string  `json:"ext"`
	Height         *int    `json:"height"`
	FormatNote     string  `json:"format_note"`
	Filesize       *int64  `json:"filesize"`
	FilesizeApprox *int64  `json:"filesize_approx"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	TBR            float64 `json:"tbr"`
}

// Catalog runs a metadata-only query.
func (y *YTDLP) Catalog(ctx context.Context, url string) (*Catalog, error) {
	dl := ytdlp.New().
		DumpSingleJSON().
		SkipDownload().
		NoPlaylist().
		NoWarnings().
		SocketTimeout(y.cfg.SocketTimeout.Seconds())

	res, err := dl.Run(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	return parseCatalog([]byte(res.Stdout))
}

func parseCatalog(raw []byte) (*Catalog, error) {
	var info ytdlpInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("%w: decode metadata: %w", ErrExtraction, err)
	}

	c := &Catalog{Title: info.Title, Duration: info.Duration}
	for _, f := range info.Formats {
		if f.VCodec == "none" {
			continue
		}
		out := Format{
			ID:       f.FormatID,
			Ext:      f.Ext,
			Note:     f.FormatNote,
			HasAudio: f.ACodec != "" && f.ACodec != "none",
		}
		if f.Height != nil {
			out.Height = *f.Height
		}
		switch {
		case f.Filesize != nil && *f.Filesize > 0:
			out.Size = *f.Filesize
		case f.FilesizeApprox != nil && *f.FilesizeApprox > 0:
			out.Size = *f.FilesizeApprox
		case f.TBR > 0 && info.Duration > 0:
			out.Size = int64(f.TBR * 1000 / 8 * info.Duration)
		}
		c.Formats = append(c.Formats, out)
	}
	return c, nil
}

// Download fetches req.Format into req.Dir and returns the resulting file path.
func (y *YTDLP) Download(ctx context.Context, req DownloadRequest) (string, error) {
	// yt-dlp expands %(field)s in the template, so literal percent signs are doubled.
	stem := strings.ReplaceAll(req.Name, "%", "%%")
	tmpl := filepath.Join(req.Dir, stem+".%(ext)s")

	dl := ytdlp.New().
		Format(req.Format.Selector()).
		Output(tmpl).
		MergeOutputFormat(y.cfg.MergeFormat).
		NoPlaylist().
		SocketTimeout(y.cfg.SocketTimeout.Seconds()).
		LimitRate(y.cfg.RateLimit).
		Quiet().
		NoProgress().
		NoSimulate().
		Print("after_move:filepath")

	res, err := dl.Run(ctx, req.URL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	if p := lastLine(res.Stdout); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	p, err := newestFile(req.Dir)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	return p, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// newestFile finds the downloaded file when yt-dlp did not print its path.
func newestFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	type cand struct {
		path string
		mod  time.Time
	}
	var files []cand
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".part") || strings.HasSuffix(e.Name(), ".ytdl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, cand{filepath.Join(dir, e.Name()), info.ModTime()})
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no file produced in %s", dir)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.After(files[j].mod) })
	return files[0].path, nil
}
