package videos

import (
	"context"
	"errors"
)

// ErrProviderUnavailable indicates the metadata provider is not configured.
var ErrProviderUnavailable = errors.New("video metadata provider unavailable")

// Metadata captures the video details shown in the watch queue.
type Metadata struct {
	Title           string
	Channel         string
	Thumbnail       string
	DurationSeconds int
}

// Provider returns metadata for the supplied video URL.
type Provider interface {
	Lookup(ctx context.Context, url string) (Metadata, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, url string) (Metadata, error)

func (f ProviderFunc) Lookup(ctx context.Context, url string) (Metadata, error) {
	return f(ctx, url)
}

// Fallback is used when a lookup fails: submissions never fail on metadata.
func Fallback(youtubeID string) Metadata {
	return Metadata{
		Title:     "YouTube video " + youtubeID,
		Thumbnail: ThumbnailURL(youtubeID),
	}
}
