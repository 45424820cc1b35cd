package bot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/wapuda/vidfetch/internal/media"
)

const callbackPrefix = "fmt:"

var (
	urlPattern = regexp.MustCompile(`https?://[^\s<>"]+`)
	// two time values separated by a dash or spaces, e.g. "10-25", "1:05 1:40"
	windowShape = regexp.MustCompile(`^\d[\d:.]*\s*(?:[-–]|\s)\s*\d[\d:.]*$`)
)

// Link is a URL submission, optionally with a trim window after it.
type Link struct {
	URL  string
	Trim *media.TrimWindow
}

// parseLink finds the first URL in text. Text after the URL is read as a trim
// window only when it looks like one; anything else is ignored. ok is false
// when text has no URL.
func parseLink(text string) (link Link, ok bool, err error) {
	loc := urlPattern.FindStringIndex(text)
	if loc == nil {
		return Link{}, false, nil
	}
	link.URL = strings.TrimRight(text[loc[0]:loc[1]], ".,)")
	rest := strings.TrimSpace(text[loc[1]:])
	if !windowShape.MatchString(rest) {
		return link, true, nil
	}
	w, err := media.ParseTrimWindow(rest)
	if err != nil {
		return link, true, err
	}
	link.Trim = &w
	return link, true, nil
}

func callbackData(token string, index int) string {
	return callbackPrefix + token + ":" + strconv.Itoa(index)
}

func parseCallback(data string) (token string, index int, err error) {
	if !strings.HasPrefix(data, callbackPrefix) {
		return "", 0, fmt.Errorf("unknown callback %q", data)
	}
	parts := strings.Split(strings.TrimPrefix(data, callbackPrefix), ":")
	if len(parts) != 2 || parts[0] == "" {
		return "", 0, fmt.Errorf("malformed callback %q", data)
	}
	index, err = strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, fmt.Errorf("malformed callback %q", data)
	}
	return parts[0], index, nil
}
