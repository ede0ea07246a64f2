package videos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strings"
	"time"
)

// ErrNoMetadata is returned when yt-dlp answers but the video has no title.
var ErrNoMetadata = errors.New("yt-dlp returned no title")

// ExecFunc runs a command and returns its stdout.
type ExecFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// YTDLP reads title, channel, thumbnail and duration for one video by running
// the yt-dlp binary in JSON mode. Nothing is downloaded.
type YTDLP struct {
	path    string
	timeout time.Duration
	exec    ExecFunc
}

func NewYTDLP(path string, timeout time.Duration) *YTDLP {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "yt-dlp"
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &YTDLP{path: path, timeout: timeout, exec: runCommand}
}

// ytdlpInfo is the subset of yt-dlp's info dict the watch queue shows.
type ytdlpInfo struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Channel   string  `json:"channel"`
	Uploader  string  `json:"uploader"`
	Thumbnail string  `json:"thumbnail"`
	Duration  float64 `json:"duration"`
	IsLive    bool    `json:"is_live"`
}

func (info ytdlpInfo) metadata() (Metadata, error) {
	title := strings.TrimSpace(info.Title)
	if title == "" {
		return Metadata{}, ErrNoMetadata
	}
	m := Metadata{
		Title:     title,
		Channel:   firstNonEmpty(info.Channel, info.Uploader),
		Thumbnail: info.Thumbnail,
	}
	if m.Thumbnail == "" && youtubeIDPattern.MatchString(info.ID) {
		m.Thumbnail = ThumbnailURL(info.ID)
	}
	// Live streams have no fixed length; callers treat 0 as unknown.
	if !info.IsLive && info.Duration > 0 {
		m.DurationSeconds = int(math.Round(info.Duration))
	}
	return m, nil
}

func (y *YTDLP) Lookup(ctx context.Context, url string) (Metadata, error) {
	if y == nil || y.exec == nil {
		return Metadata{}, ErrProviderUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, y.timeout)
	defer cancel()

	out, err := y.exec(ctx, y.path,
		"--dump-json", "--skip-download", "--no-playlist", "--no-warnings",
		"--socket-timeout", fmt.Sprint(int(y.timeout.Seconds())),
		"--", url)
	if err != nil {
		return Metadata{}, fmt.Errorf("yt-dlp %s: %w", url, err)
	}

	var info ytdlpInfo
	if err := json.Unmarshal(bytes.TrimSpace(out), &info); err != nil {
		return Metadata{}, fmt.Errorf("decode yt-dlp output: %w", err)
	}
	return info.metadata()
}

// runCommand keeps the first line of stderr on failure; yt-dlp puts the reason
// (private video, removed, geo-blocked) there.
func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		line, _, _ := strings.Cut(strings.TrimSpace(string(exitErr.Stderr)), "\n")
		return nil, fmt.Errorf("%w: %s", err, line)
	}
	return out, err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
