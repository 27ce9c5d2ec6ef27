package media

import "fmt"

// DefaultFormat is used when no quality was requested or the requested
// quality is not one of the supported caps.
const DefaultFormat = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best"

// AudioFormat selects the best m4a audio track, falling back to any audio.
const AudioFormat = "bestaudio[ext=m4a]/bestaudio"

// Supported quality caps in pixels of height.
var Qualities = []int{1080, 720, 360}

// SelectFormat maps a requested quality and audio flag to a yt-dlp format
// filter. A recognized quality takes precedence over the audio flag.
func SelectFormat(quality int, audioOnly bool) string {
	if IsSupportedQuality(quality) {
		return fmt.Sprintf("bestvideo[height<=%d][ext=mp4]+bestaudio[ext=m4a]/best[height<=%d]", quality, quality)
	}
	if audioOnly {
		return AudioFormat
	}
	return DefaultFormat
}

// IsSupportedQuality reports whether q is one of Qualities.
func IsSupportedQuality(q int) bool {
	for _, s := range Qualities {
		if s == q {
			return true
		}
	}
	return false
}
