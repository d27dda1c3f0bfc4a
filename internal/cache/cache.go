package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/verakko/jobsnap/internal/posting"
)

// DefaultTTL is how long a stored extraction stays valid.
const DefaultTTL = 24 * time.Hour

// Store maps a URL to a previously extracted posting so repeat scrapes skip
// the expensive fetch and inference work.
type Store interface {
	// Get returns the cached posting, or false when no entry exists, the
	// entry has expired, or the entry cannot be read.
	Get(ctx context.Context, url string) (*posting.JobPosting, bool)
	// Put writes or overwrites the entry for url with creation time "now".
	Put(ctx context.Context, url string, p posting.JobPosting) error
}

// Entry is the on-disk record: the posting plus its creation time.
type Entry struct {
	Posting posting.JobPosting `json:"posting"`
	SavedAt time.Time          `json:"saved_at"`
}

// Fingerprint returns the fixed-length, filesystem-safe cache key for a URL.
func Fingerprint(url string) string {
	h := sha256.Sum256([]byte(url))
	return hex.EncodeToString(h[:])
}

// FileStore persists one JSON file per fingerprint under Dir. Entries are
// immutable once written; a refresh overwrites the whole file.
type FileStore struct {
	Dir string
	// TTL after which entries are treated as absent. Zero means DefaultTTL.
	TTL time.Duration
	// Now is a clock hook for tests. Nil uses time.Now.
	Now func() time.Time
}

func (s *FileStore) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultTTL
}

func (s *FileStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *FileStore) ensureDir() error {
	if s == nil || s.Dir == "" {
		return errors.New("cache dir not configured")
	}
	return os.MkdirAll(s.Dir, 0o755)
}

func (s *FileStore) pathFor(url string) string {
	return filepath.Join(s.Dir, Fingerprint(url)+".json")
}

// Get returns the cached posting unless the entry is missing, expired, or
// unreadable. Corrupted entries count as a miss so one bad file never fails a
// scrape.
func (s *FileStore) Get(_ context.Context, url string) (*posting.JobPosting, bool) {
	if s == nil || s.Dir == "" {
		return nil, false
	}
	p := s.pathFor(url)
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		log.Warn().Err(err).Str("entry", filepath.Base(p)).Msg("corrupt cache entry; ignoring")
		return nil, false
	}
	if s.now().Sub(e.SavedAt) > s.ttl() {
		return nil, false
	}
	cp := e.Posting
	return &cp, true
}

// Put overwrites the entry for url with creation time "now". The write goes to
// a temp file first and is renamed into place, so concurrent readers never
// observe a partial entry and same-key writers resolve last-writer-wins.
func (s *FileStore) Put(_ context.Context, url string, p posting.JobPosting) error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	e := Entry{Posting: p, SavedAt: s.now().UTC()}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	dst := s.pathFor(url)
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	return os.Rename(tmp, dst)
}
