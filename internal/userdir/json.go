package userdir

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"linkrelay/internal/common"
	"linkrelay/internal/media"
)

// JSONStore keeps every record in memory and rewrites the whole file after
// each change. Writes go through a temp file and rename, so a crash never
// leaves a truncated file behind.
type JSONStore struct {
	mu    sync.Mutex
	path  string
	users map[string]*media.UserRecord
	now   clock
}

// OpenJSON loads path, creating its directory if needed. A missing file is an
// empty directory.
func OpenJSON(path string) (*JSONStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating users dir: %w", err)
	}

	s := &JSONStore{path: path, users: make(map[string]*media.UserRecord), now: utcNow}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading users: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}
	var stored map[string]fileRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("parsing users %s: %w", path, err)
	}
	for k, fr := range stored {
		rec := fr.record()
		if rec.UserID == 0 {
			id, err := strconv.ParseInt(k, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parsing users %s: bad key %q", path, k)
			}
			rec.UserID = id
		}
		s.users[key(rec.UserID)] = &rec
	}
	return s, nil
}

// fileRecord is the on-disk shape of a user. username may be null.
type fileRecord struct {
	UserID         int64   `json:"user_id"`
	Username       *string `json:"username"`
	JoinedDate     isoTime `json:"joined_date"`
	LastSeen       isoTime `json:"last_seen"`
	TotalDownloads uint64  `json:"total_downloads"`
}

func (fr fileRecord) record() media.UserRecord {
	rec := media.UserRecord{
		UserID:         fr.UserID,
		JoinedAt:       time.Time(fr.JoinedDate),
		LastSeenAt:     time.Time(fr.LastSeen),
		TotalDownloads: fr.TotalDownloads,
	}
	if fr.Username != nil {
		rec.DisplayName = *fr.Username
	}
	return rec
}

func toFileRecord(rec *media.UserRecord) fileRecord {
	name := rec.DisplayName
	return fileRecord{
		UserID:         rec.UserID,
		Username:       &name,
		JoinedDate:     isoTime(rec.JoinedAt),
		LastSeen:       isoTime(rec.LastSeenAt),
		TotalDownloads: rec.TotalDownloads,
	}
}

// isoTimeLayouts are tried in order. Zone-less timestamps are local time.
// Fractional seconds are accepted after the seconds field by every layout.
var isoTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// isoTime is written as RFC 3339 and read from RFC 3339 or a zone-less
// ISO 8601 timestamp.
type isoTime time.Time

func (t isoTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UTC().Format(time.RFC3339Nano))
}

func (t *isoTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	for _, layout := range isoTimeLayouts {
		if v, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			*t = isoTime(v.UTC())
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

func key(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

func (s *JSONStore) AddUser(ctx context.Context, userID int64, displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec, ok := s.users[key(userID)]
	if !ok {
		rec = &media.UserRecord{UserID: userID, JoinedAt: now}
		s.users[key(userID)] = rec
	}
	rec.DisplayName = displayName
	rec.LastSeenAt = now

	return s.save()
}

func (s *JSONStore) GetUser(ctx context.Context, userID int64) (media.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[key(userID)]
	if !ok {
		return media.UserRecord{}, common.ErrNotFound
	}
	return *rec, nil
}

func (s *JSONStore) AllUsers(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.users))
	for _, rec := range s.users {
		ids = append(ids, rec.UserID)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *JSONStore) ListUsers(ctx context.Context) ([]media.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := make([]media.UserRecord, 0, len(s.users))
	for _, rec := range s.users {
		recs = append(recs, *rec)
	}
	slices.SortFunc(recs, func(a, b media.UserRecord) int {
		switch {
		case a.UserID < b.UserID:
			return -1
		case a.UserID > b.UserID:
			return 1
		}
		return 0
	})
	return recs, nil
}

func (s *JSONStore) CountUsers(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users), nil
}

func (s *JSONStore) IncrementDownloads(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[key(userID)]
	if !ok {
		return common.ErrNotFound
	}
	rec.TotalDownloads++
	rec.LastSeenAt = s.now()
	return s.save()
}

func (s *JSONStore) Touch(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[key(userID)]
	if !ok {
		return common.ErrNotFound
	}
	rec.LastSeenAt = s.now()
	return s.save()
}

func (s *JSONStore) DeleteUser(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[key(userID)]; !ok {
		return nil
	}
	delete(s.users, key(userID))
	return s.save()
}

func (s *JSONStore) Close() error {
	return nil
}

// save must be called with mu held.
func (s *JSONStore) save() error {
	stored := make(map[string]fileRecord, len(s.users))
	for k, rec := range s.users {
		stored[k] = toFileRecord(rec)
	}
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding users: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmpFile, err := os.CreateTemp(dir, "users-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing users: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming users file: %w", err)
	}

	return nil
}
