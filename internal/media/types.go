package media

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Errors returned by the pipeline stages. Callers match them with errors.Is.
var (
	// ErrExtraction is returned when yt-dlp cannot list or fetch the media.
	ErrExtraction = errors.New("extraction failed")

	// ErrTrim is returned when the stream copy cut fails or the window is invalid.
	ErrTrim = errors.New("trim failed")

	// ErrThumbnail marks a failed thumbnail. It never aborts a run.
	ErrThumbnail = errors.New("thumbnail failed")
)

// Format is one downloadable quality/container option reported by the extractor.
type Format struct {
	ID       string `json:"id"`
	Ext      string `json:"ext"`
	Height   int    `json:"height"`
	Note     string `json:"note,omitempty"`
	Size     int64  `json:"size"` // estimate in bytes, 0 when unknown
	HasAudio bool   `json:"has_audio"`
}

// Selector is the yt-dlp format expression for f. Video-only formats get the best
// audio merged in so the result is playable with sound.
func (f Format) Selector() string {
	if f.HasAudio {
		return f.ID
	}
	return f.ID + "+bestaudio/" + f.ID
}

// Catalog is the metadata-only answer for a URL.
type Catalog struct {
	Title    string
	Duration float64
	Formats  []Format
}

// TrimWindow is an inclusive start/end range in seconds.
type TrimWindow struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Valid reports whether the window can be cut.
func (w TrimWindow) Valid() bool {
	return w.Start >= 0 && w.End > w.Start
}

func (w TrimWindow) String() string {
	return fmtSeconds(w.Start) + "-" + fmtSeconds(w.End)
}

// ParseTrimWindow accepts "S-E", "S E" or "S–E" where each side is seconds
// ("90", "12.5") or a clock value ("1:30", "01:02:03").
func ParseTrimWindow(s string) (TrimWindow, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "–", "-"))
	var parts []string
	if strings.Contains(s, "-") {
		parts = strings.SplitN(s, "-", 2)
	} else {
		parts = strings.Fields(s)
	}
	if len(parts) != 2 {
		return TrimWindow{}, fmt.Errorf("trim window %q: want start-end", s)
	}
	start, err := parseClock(parts[0])
	if err != nil {
		return TrimWindow{}, err
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return TrimWindow{}, err
	}
	w := TrimWindow{Start: start, End: end}
	if !w.Valid() {
		return TrimWindow{}, fmt.Errorf("trim window %q: end must be after start", s)
	}
	return w, nil
}

func parseClock(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty time value")
	}
	var total float64
	fields := strings.Split(s, ":")
	if len(fields) > 3 {
		return 0, fmt.Errorf("bad time value %q", s)
	}
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("bad time value %q", s)
		}
		if i > 0 && v >= 60 {
			return 0, fmt.Errorf("bad time value %q", s)
		}
		total = total*60 + v
	}
	return total, nil
}

func fmtSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Thumbnail is the optional cover image. A nil *Thumbnail on an Artifact means none
// was produced; ThumbErr then holds the cause.
type Thumbnail struct {
	Path string
}

// Artifact is the processed file ready for delivery. It lives inside the job's
// scratch directory.
type Artifact struct {
	Title     string
	Path      string
	Source    string // pre-trim download, equal to Path when untrimmed
	Trim      *TrimWindow
	Thumbnail *Thumbnail
	ThumbErr  error
	Size      int64
	Duration  time.Duration
}

// HasThumbnail reports whether a thumbnail can be attached.
func (a *Artifact) HasThumbnail() bool {
	return a.Thumbnail != nil && a.Thumbnail.Path != ""
}
