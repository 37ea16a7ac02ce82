package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"linkrelay/internal/media"
)

// run executes the root command with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	for _, key := range []string{"DATABASE_URL", "DEFAULT_QUALITY", "MAX_FILE_SIZE", "OWNER_ID", "AUTH_USERS", "LINKRELAY_DEBUG"} {
		t.Setenv(key, "")
	}
	t.Cleanup(func() {
		flagJSON, flagDebug = false, false
		flagQuality, flagDownloadDir, flagConfig = "", "", ""
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestExtractCommandJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.txt")
	if err := os.WriteFile(path, []byte("Physics Class 1:https://cdn.example/video.m3u8\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "extract", "--json", path)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	var entries []media.LinkEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	want := media.LinkEntry{URL: "https://cdn.example/video.m3u8", Title: "Physics Class 1"}
	if len(entries) != 1 || entries[0] != want {
		t.Errorf("entries = %+v, want [%+v]", entries, want)
	}
}

func TestExtractCommandEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.txt")
	if err := os.WriteFile(path, []byte("nothing to see\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := run(t, "extract", path)
	if err == nil || !strings.Contains(err.Error(), "no valid video links found") {
		t.Errorf("extract error = %v, want parse-empty", err)
	}
}

func TestInvalidQualityFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.txt")
	if err := os.WriteFile(path, []byte("https://a.com/x\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := run(t, "extract", "-q", "4k", path); err == nil {
		t.Error("expected invalid quality to fail")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if out != "linkrelay dev\n" {
		t.Errorf("version output = %q", out)
	}
}
