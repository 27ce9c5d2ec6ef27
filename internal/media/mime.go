package media

import (
	"mime"
	"strings"
)

const defaultContentType = "application/octet-stream"

var extensions = map[string]string{
	"video/mp4":        "mp4",
	"video/webm":       "webm",
	"video/3gpp":       "3gp",
	"video/x-matroska": "mkv",
	"audio/mp4":        "m4a",
	"audio/webm":       "weba",
	"audio/mpeg":       "mp3",
}

// ExtensionFor returns the container extension for a mime type such as
// `video/mp4; codecs="avc1.42001E, mp4a.40.2"`. Unknown types map to mp4.
func ExtensionFor(mimeType string) string {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return "mp4"
	}
	if ext, ok := extensions[mediaType]; ok {
		return ext
	}
	switch {
	case strings.HasPrefix(mediaType, "audio/"):
		return "m4a"
	default:
		return "mp4"
	}
}

// BaseType strips parameters from a mime type.
func BaseType(mimeType string) string {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil || mediaType == "" {
		return defaultContentType
	}
	return mediaType
}

// ContentTypeFor returns the content type to announce for a file extension.
func ContentTypeFor(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for mt, e := range extensions {
		if e == ext {
			return mt
		}
	}
	if mt := mime.TypeByExtension("." + ext); mt != "" {
		return BaseType(mt)
	}
	return defaultContentType
}

// ContentDisposition formats an attachment header value for name.
func ContentDisposition(name string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": name})
}
