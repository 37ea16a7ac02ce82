package httputil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBrowserHeaders(t *testing.T) {
	const fallback = "https://web.classplusapp.com/"
	tests := []struct {
		name        string
		url         string
		fallback    string
		wantReferer string
		wantOrigin  string
	}{
		{"classplus", "https://media-cdn.classplusapp.com/x/master.m3u8", "", "https://web.classplusapp.com/", "https://web.classplusapp.com"},
		{"physics wallah", "https://d1.pw.live/v/index.m3u8", fallback, "https://www.pw.live/", "https://www.pw.live"},
		{"unacademy", "https://unacademy.com/lesson/1", fallback, "https://unacademy.com/", "https://unacademy.com"},
		{"apna college", "https://www.apnacollege.in/course", fallback, "https://www.apnacollege.in/", "https://www.apnacollege.in"},
		{"unknown uses fallback", "https://youtube.com/watch?v=1", fallback, fallback, "https://web.classplusapp.com"},
		{"unknown without fallback", "https://vimeo.com/1", "", "", ""},
		{"suffix must be a label", "https://notpw.live/x", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := BrowserHeaders(tt.url, tt.fallback)
			if h["User-Agent"] == "" {
				t.Error("User-Agent missing")
			}
			if h["Referer"] != tt.wantReferer {
				t.Errorf("Referer = %q, want %q", h["Referer"], tt.wantReferer)
			}
			if h["Origin"] != tt.wantOrigin {
				t.Errorf("Origin = %q, want %q", h["Origin"], tt.wantOrigin)
			}
		})
	}
}

func TestDownloadFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/links.txt":
			w.Write([]byte("A:https://a.com\n"))
		case "/big":
			w.Write([]byte(strings.Repeat("x", 64)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient(5 * time.Second)
	ctx := context.Background()

	t.Run("ok", func(t *testing.T) {
		dst := filepath.Join(t.TempDir(), "links.txt")
		n, err := DownloadFile(ctx, client, srv.URL+"/links.txt", dst, 0)
		if err != nil {
			t.Fatalf("DownloadFile() error: %v", err)
		}
		data, _ := os.ReadFile(dst)
		if n != int64(len(data)) || string(data) != "A:https://a.com\n" {
			t.Errorf("DownloadFile() wrote %q (%d bytes)", data, n)
		}
	})

	t.Run("over limit leaves nothing", func(t *testing.T) {
		dir := t.TempDir()
		dst := filepath.Join(dir, "big")
		if _, err := DownloadFile(ctx, client, srv.URL+"/big", dst, 10); err == nil {
			t.Fatal("expected size error")
		}
		if entries, _ := os.ReadDir(dir); len(entries) != 0 {
			t.Errorf("partial files left behind: %v", entries)
		}
	})

	t.Run("bad status", func(t *testing.T) {
		dst := filepath.Join(t.TempDir(), "missing")
		if _, err := DownloadFile(ctx, client, srv.URL+"/missing", dst, 0); err == nil {
			t.Fatal("expected status error")
		}
	})

	t.Run("bad scheme", func(t *testing.T) {
		dst := filepath.Join(t.TempDir(), "x")
		if _, err := DownloadFile(ctx, client, "file:///etc/passwd", dst, 0); err == nil {
			t.Fatal("expected URL validation error")
		}
	})
}
