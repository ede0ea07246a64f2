package videos

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestParseSource(t *testing.T) {
	cases := map[string]string{
		"dQw4w9WgXcQ":                                  "dQw4w9WgXcQ",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ":  "dQw4w9WgXcQ",
		"youtube.com/watch?v=dQw4w9WgXcQ&t=42s":        "dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ":                 "dQw4w9WgXcQ",
		"https://m.youtube.com/shorts/dQw4w9WgXcQ":     "dQw4w9WgXcQ",
		"https://www.youtube.com/embed/dQw4w9WgXcQ":    "dQw4w9WgXcQ",
		"  https://music.youtube.com/watch?v=dQw4w9WgXcQ ": "dQw4w9WgXcQ",
	}
	for in, want := range cases {
		got, err := ParseSource(in)
		if err != nil {
			t.Fatalf("ParseSource(%q) error = %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseSource(%q) = %q, want %q", in, got, want)
		}
	}

	for _, bad := range []string{"", "https://vimeo.com/12345", "https://youtube.com/watch?v=short", "https://youtube.com/channel/abc"} {
		if _, err := ParseSource(bad); err == nil {
			t.Fatalf("ParseSource(%q) expected error", bad)
		}
	}
}

func fakeExec(out string, err error) ExecFunc {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(out), err
	}
}

func TestYTDLPLookup(t *testing.T) {
	y := NewYTDLP("yt-dlp", time.Second)
	y.exec = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if name != "yt-dlp" {
			t.Fatalf("ran %q, want yt-dlp", name)
		}
		if args[len(args)-1] != WatchURL("dQw4w9WgXcQ") || args[len(args)-2] != "--" {
			t.Fatalf("url must follow --, got %v", args)
		}
		return []byte(`{"id":"dQw4w9WgXcQ","title":"Never","uploader":"Rick","thumbnail":"t.jpg","duration":212.6}` + "\n"), nil
	}

	meta, err := y.Lookup(context.Background(), WatchURL("dQw4w9WgXcQ"))
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	want := Metadata{Title: "Never", Channel: "Rick", Thumbnail: "t.jpg", DurationSeconds: 213}
	if meta != want {
		t.Fatalf("Lookup() = %+v, want %+v", meta, want)
	}
}

func TestYTDLPLookupShapes(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want Metadata
	}{
		{
			name: "channel preferred over uploader",
			out:  `{"id":"dQw4w9WgXcQ","title":"A","channel":"Chan","uploader":"Up","thumbnail":"x.jpg","duration":60}`,
			want: Metadata{Title: "A", Channel: "Chan", Thumbnail: "x.jpg", DurationSeconds: 60},
		},
		{
			name: "live stream has no duration",
			out:  `{"id":"dQw4w9WgXcQ","title":"Live","channel":"Chan","thumbnail":"x.jpg","duration":5400,"is_live":true}`,
			want: Metadata{Title: "Live", Channel: "Chan", Thumbnail: "x.jpg"},
		},
		{
			name: "missing thumbnail uses the standard one",
			out:  `{"id":"dQw4w9WgXcQ","title":"B","duration":10}`,
			want: Metadata{Title: "B", Thumbnail: ThumbnailURL("dQw4w9WgXcQ"), DurationSeconds: 10},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			y := NewYTDLP("", 0)
			y.exec = fakeExec(tt.out, nil)
			got, err := y.Lookup(context.Background(), "u")
			if err != nil {
				t.Fatalf("Lookup() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("Lookup() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestYTDLPLookupErrors(t *testing.T) {
	y := NewYTDLP("", 0)

	y.exec = fakeExec(`{"title":"  ","thumbnail":"t.jpg"}`, nil)
	if _, err := y.Lookup(context.Background(), "u"); !errors.Is(err, ErrNoMetadata) {
		t.Fatalf("expected ErrNoMetadata, got %v", err)
	}

	y.exec = fakeExec("ERROR: not json", nil)
	if _, err := y.Lookup(context.Background(), "u"); err == nil {
		t.Fatal("expected decode error")
	}

	y.exec = fakeExec("", errors.New("exit status 1: ERROR: Private video"))
	_, err := y.Lookup(context.Background(), "u")
	if err == nil || !strings.Contains(err.Error(), "Private video") {
		t.Fatalf("expected yt-dlp failure to surface, got %v", err)
	}

	var nilYTDLP *YTDLP
	if _, err := nilYTDLP.Lookup(context.Background(), "u"); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestCacheExpires(t *testing.T) {
	calls := 0
	next := ProviderFunc(func(ctx context.Context, url string) (Metadata, error) {
		calls++
		return Metadata{Title: "Test"}, nil
	})

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewCache(next, time.Hour)
	cache.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if _, err := cache.Lookup(context.Background(), "https://example.com/a"); err != nil {
			t.Fatalf("Lookup() error = %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected 1 lookup, got %d", calls)
	}

	now = now.Add(2 * time.Hour)
	if _, err := cache.Lookup(context.Background(), "https://example.com/b"); err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if cache.Len() != 1 {
		t.Fatalf("expired entry not pruned, len = %d", cache.Len())
	}
	if _, err := cache.Lookup(context.Background(), "https://example.com/a"); err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected refresh after ttl, got %d lookups", calls)
	}
}

func TestCacheSharesConcurrentLookups(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	next := ProviderFunc(func(ctx context.Context, url string) (Metadata, error) {
		calls.Add(1)
		<-release
		return Metadata{Title: "Shared"}, nil
	})
	cache := NewCache(next, time.Hour)

	var wg sync.WaitGroup
	results := make([]Metadata, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = cache.Lookup(context.Background(), "https://example.com/v")
		}(i)
	}
	// Give the goroutines time to join the in-flight lookup.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Fatalf("expected one shared lookup, got %d", n)
	}
	for i, m := range results {
		if m.Title != "Shared" {
			t.Fatalf("result %d = %+v", i, m)
		}
	}
	if _, err := cache.Lookup(context.Background(), "https://example.com/v"); err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("cached result not reused, %d lookups", n)
	}
}

func TestCacheDoesNotKeepFailures(t *testing.T) {
	calls := 0
	next := ProviderFunc(func(ctx context.Context, url string) (Metadata, error) {
		calls++
		return Metadata{}, errors.New("boom")
	})
	cache := NewCache(next, time.Hour)
	_, _ = cache.Lookup(context.Background(), "u")
	_, _ = cache.Lookup(context.Background(), "u")
	if calls != 2 {
		t.Fatalf("expected failures to bypass the cache, got %d lookups", calls)
	}
	if cache.Len() != 0 {
		t.Fatalf("failure cached, len = %d", cache.Len())
	}
}

func TestFallback(t *testing.T) {
	meta := Fallback("dQw4w9WgXcQ")
	if meta.Title == "" || meta.Thumbnail != ThumbnailURL("dQw4w9WgXcQ") {
		t.Fatalf("unexpected fallback: %+v", meta)
	}
}
