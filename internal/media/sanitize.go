package media

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxFilenameLen caps SafeFilename output, counted in runes.
	MaxFilenameLen = 120
	// MaxFilenameBytes caps the UTF-8 length so prefixes like "trimmed_" and
	// yt-dlp suffixes like ".f137.mp4.part" still fit in NAME_MAX (255).
	MaxFilenameBytes = 200
	// FallbackFilename is returned for empty or blank input.
	FallbackFilename = "file"
)

var (
	illegalChars = regexp.MustCompile(`[\\/*?:"<>|]`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// SafeFilename makes name usable as a path component: illegal characters become
// underscores, line breaks and whitespace runs collapse to one space, and the
// result is trimmed and capped at MaxFilenameLen runes and MaxFilenameBytes bytes.
func SafeFilename(name string) string {
	name = strings.NewReplacer("\r", " ", "\n", " ").Replace(name)
	name = illegalChars.ReplaceAllString(name, "_")
	name = whitespace.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)
	if !utf8.ValidString(name) {
		name = strings.ToValidUTF8(name, "_")
	}
	if utf8.RuneCountInString(name) > MaxFilenameLen {
		name = strings.TrimSpace(string([]rune(name)[:MaxFilenameLen]))
	}
	if len(name) > MaxFilenameBytes {
		cut := MaxFilenameBytes
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = strings.TrimSpace(name[:cut])
	}
	if name == "" {
		return FallbackFilename
	}
	return name
}
