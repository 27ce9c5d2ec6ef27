package media

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kkdai/youtube/v2/downloader"
)

const (
	// DefaultTitle replaces titles that sanitize to nothing.
	DefaultTitle = "video"

	maxTitleLength = 120
)

// SafeFileName turns an arbitrary title into a file name component: control
// and filesystem-reserved characters are removed, whitespace runs become a
// single underscore and the result is capped at 120 characters.
func SafeFileName(title string) string {
	title = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, title)
	title = downloader.SanitizeFilename(title)
	title = strings.Join(strings.Fields(title), "_")
	title = strings.TrimRight(title, ".")

	if title == "" || strings.Trim(title, ".") == "" {
		return DefaultTitle
	}

	if utf8.RuneCountInString(title) > maxTitleLength {
		title = string([]rune(title)[:maxTitleLength])
	}
	return title
}

// AttachmentName builds the Content-Disposition file name for a title.
func AttachmentName(title, ext string) string {
	return SafeFileName(title) + "." + strings.TrimPrefix(ext, ".")
}
