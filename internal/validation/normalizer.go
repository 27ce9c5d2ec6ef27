package validation

import (
	"net/url"
	"regexp"
	"strings"
)

const canonicalPrefix = "https://www.youtube.com/watch?v="

var (
	bareIDPattern     = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	idShapePattern    = regexp.MustCompile(`^[A-Za-z0-9_-]{6,11}$`)
	shortsPathPattern = regexp.MustCompile(`/shorts/([A-Za-z0-9_-]{6,11})`)
	permissivePattern = regexp.MustCompile(`(?:v=|/watch\?v=|youtu\.be/|/shorts/)([A-Za-z0-9_-]{6,11})`)
)

// Canonical returns the watch URL for a video id.
func Canonical(id string) string {
	return canonicalPrefix + id
}

// Normalize extracts a video id from a bare id, a share link, a watch URL,
// a shorts URL or an embed URL and returns the canonical watch URL.
// The second result is false when no id could be found.
//
// Normalize is idempotent: a canonical URL maps to itself.
func Normalize(input string) (string, bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", false
	}

	if bareIDPattern.MatchString(input) {
		return Canonical(input), true
	}

	if id, ok := fromURL(input); ok {
		return Canonical(id), true
	}

	if m := permissivePattern.FindStringSubmatch(input); m != nil {
		return Canonical(m[1]), true
	}

	return "", false
}

func fromURL(input string) (string, bool) {
	raw := input
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	host := strings.ToLower(u.Hostname())

	if strings.Contains(host, "youtu.be") {
		first := strings.TrimPrefix(u.Path, "/")
		if i := strings.Index(first, "/"); i >= 0 {
			first = first[:i]
		}
		if idShapePattern.MatchString(first) {
			return first, true
		}
	}

	if strings.Contains(host, "youtube.com") || strings.Contains(host, "youtube-nocookie.com") {
		if v := u.Query().Get("v"); bareIDPattern.MatchString(v) {
			return v, true
		}
		if m := shortsPathPattern.FindStringSubmatch(u.Path); m != nil {
			return m[1], true
		}
		if last := lastSegment(u.Path); idShapePattern.MatchString(last) {
			return last, true
		}
	}

	return "", false
}

func lastSegment(path string) string {
	parts := strings.Split(path, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}
	return ""
}
