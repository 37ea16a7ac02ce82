// Package media defines shared types for the linkrelay application.
package media

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Quality is a target vertical-resolution cap used to bound format selection.
type Quality int

const (
	Q360  Quality = 360
	Q480  Quality = 480
	Q720  Quality = 720
	Q1080 Quality = 1080
)

// DefaultQuality is used when a user has not picked a tier.
const DefaultQuality = Q720

// Qualities lists the supported tiers in ascending order.
var Qualities = []Quality{Q360, Q480, Q720, Q1080}

// ParseQuality accepts "720", "720p" or "720P".
func ParseQuality(s string) (Quality, error) {
	s = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "p")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("unsupported quality %q (valid: 360, 480, 720, 1080)", s)
	}
	q := Quality(n)
	if !q.Valid() {
		return 0, fmt.Errorf("unsupported quality %q (valid: 360, 480, 720, 1080)", s)
	}
	return q, nil
}

// Valid reports whether q is one of the four supported tiers.
func (q Quality) Valid() bool {
	for _, v := range Qualities {
		if q == v {
			return true
		}
	}
	return false
}

func (q Quality) String() string {
	return strconv.Itoa(int(q))
}

// FormatSelector returns the yt-dlp format expression for the tier:
// best video plus best audio capped at the height, falling back to the best
// single-file format under the same cap.
func (q Quality) FormatSelector() string {
	if !q.Valid() {
		q = DefaultQuality
	}
	h := q.String()
	return "bestvideo[height<=" + h + "]+bestaudio/best[height<=" + h + "]"
}

// LinkEntry is one parsed (url, title) pair extracted from a batch source.
type LinkEntry struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// PlaceholderTitle returns the positional title used when a link has none.
func PlaceholderTitle(n int) string {
	return fmt.Sprintf("Video_%d", n)
}

// DownloadRequest describes a single fetch. It only lives for one Fetch call.
type DownloadRequest struct {
	URL       string
	Name      string // staging file stem, sanitized by the fetcher
	Quality   Quality
	Headers   map[string]string
	SizeLimit int64 // bytes; zero disables the check
}

// FailureReason classifies a failed fetch.
type FailureReason int

const (
	ExtractionFailed FailureReason = iota
	SizeExceeded
	NetworkTimeout
	Unsupported
)

func (r FailureReason) String() string {
	switch r {
	case ExtractionFailed:
		return "extraction failed"
	case SizeExceeded:
		return "size exceeded"
	case NetworkTimeout:
		return "network timeout"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// DownloadResult is either a Success or a Failure.
type DownloadResult interface {
	isDownloadResult()
}

// Success names a file in the staging directory. The receiver owns the file
// until it uploads and deletes it.
type Success struct {
	FilePath string
	FileSize int64
	Format   string
}

// Failure carries the classified reason and the engine's message for diagnostics.
type Failure struct {
	Reason  FailureReason
	Message string
}

func (Success) isDownloadResult() {}
func (Failure) isDownloadResult() {}

func (f Failure) String() string {
	if f.Message == "" {
		return f.Reason.String()
	}
	return f.Reason.String() + ": " + f.Message
}

// Progress is a partial transfer snapshot reported by the engine.
type Progress struct {
	Downloaded int64
	Total      int64 // zero when unknown
	Percent    string
	Speed      string
	ETA        string
}

// VideoInfo is metadata returned by a probe without downloading.
type VideoInfo struct {
	Title       string  `json:"title"`
	Duration    float64 `json:"duration"`
	Uploader    string  `json:"uploader"`
	Thumbnail   string  `json:"thumbnail"`
	Description string  `json:"description"`
	ViewCount   int64   `json:"view_count"`
	LikeCount   int64   `json:"like_count"`
}

// UserPreferences are the per-user settings held in process memory.
type UserPreferences struct {
	ThumbnailRef    string // opaque transport handle; empty when unset
	Channel         string // empty means reply to the originating chat
	CaptionTemplate string // empty means the default caption
	Quality         Quality
}

// UserRecord is the durable record of a known user.
type UserRecord struct {
	UserID         int64     `json:"user_id"`
	DisplayName    string    `json:"username"`
	JoinedAt       time.Time `json:"joined_date"`
	LastSeenAt     time.Time `json:"last_seen"`
	TotalDownloads uint64    `json:"total_downloads"`
}
