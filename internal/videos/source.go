package videos

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var youtubeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ParseSource extracts the 11-character YouTube video id from a bare id or any
// of the common URL shapes (watch, youtu.be, shorts, embed, live).
func ParseSource(source string) (string, error) {
	source = strings.TrimSpace(source)
	if youtubeIDPattern.MatchString(source) {
		return source, nil
	}
	if !strings.Contains(source, "://") {
		source = "https://" + source
	}
	u, err := url.Parse(source)
	if err != nil {
		return "", fmt.Errorf("invalid video source: %w", err)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	var id string
	switch host {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "music.youtube.com", "youtube-nocookie.com":
		if u.Path == "/watch" {
			id = u.Query().Get("v")
			break
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) == 2 {
			switch parts[0] {
			case "shorts", "embed", "live", "v":
				id = parts[1]
			}
		}
	default:
		return "", fmt.Errorf("unsupported video host %q", u.Hostname())
	}

	if !youtubeIDPattern.MatchString(id) {
		return "", fmt.Errorf("could not find a YouTube video id in %q", source)
	}
	return id, nil
}

// WatchURL is the canonical URL for a video id.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// ThumbnailURL is the default high quality thumbnail for a video id.
func ThumbnailURL(id string) string {
	return "https://i.ytimg.com/vi/" + id + "/hqdefault.jpg"
}
