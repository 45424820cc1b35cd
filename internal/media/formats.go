package media

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

// SurfaceFormats picks the options shown to the user: mp4 video formats with a
// known height, the best-sized entry per height, tallest first, at most limit.
// maxHeight > 0 drops anything taller.
func SurfaceFormats(all []Format, limit, maxHeight int) []Format {
	best := make(map[int]Format)
	for _, f := range all {
		if f.ID == "" || f.Height <= 0 || !strings.EqualFold(f.Ext, "mp4") {
			continue
		}
		if maxHeight > 0 && f.Height > maxHeight {
			continue
		}
		cur, ok := best[f.Height]
		if !ok || better(f, cur) {
			best[f.Height] = f
		}
	}

	out := make([]Format, 0, len(best))
	for _, f := range best {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Height > out[j].Height })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// better prefers muxed formats, then formats with a size estimate, then larger ones.
func better(a, b Format) bool {
	if a.HasAudio != b.HasAudio {
		return a.HasAudio
	}
	if (a.Size > 0) != (b.Size > 0) {
		return a.Size > 0
	}
	return a.Size > b.Size
}

// Label renders the menu text for f, e.g. "720p · mp4 · 48 MiB".
func Label(f Format) string {
	size := "size ?"
	if f.Size > 0 {
		size = MiB(f.Size)
	}
	return fmt.Sprintf("%dp · %s · %s", f.Height, strings.ToLower(f.Ext), size)
}

// MiB renders a byte count in mebibytes with at most one decimal, whatever its
// magnitude: "0.3 MiB", "48 MiB", "1,536.5 MiB".
func MiB(size int64) string {
	mib := math.Round(float64(size)/(1<<20)*10) / 10
	return humanize.CommafWithDigits(mib, 1) + " MiB"
}
