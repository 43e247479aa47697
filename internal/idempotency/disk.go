package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/imrishuroy/leadflow/internal/diskutil"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,255}$`)

// DiskStore keeps one marker file per session under dir. Claims use O_EXCL
// creation, so two processes sharing the directory cannot both claim a fresh
// session. Takeover of FAILED or stale claims is serialised in-process only.
type DiskStore struct {
	dir          string
	claimTimeout time.Duration
	nowFunc      func() time.Time
	mu           sync.Mutex
}

// NewDiskStore creates dir if needed.
func NewDiskStore(dir string, claimTimeout time.Duration) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	return &DiskStore{dir: dir, claimTimeout: claimTimeout, nowFunc: time.Now}, nil
}

func (s *DiskStore) path(sessionID string) (string, error) {
	if !sessionIDPattern.MatchString(sessionID) {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	return filepath.Join(s.dir, sessionID+".json"), nil
}

// Get returns (nil, nil) when no marker exists. A marker that is still being
// written reads as an IN_PROGRESS record.
func (s *DiskStore) Get(ctx context.Context, sessionID string) (*FulfillmentRecord, error) {
	p, err := s.path(sessionID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read marker: %w", err)
	}
	var rec FulfillmentRecord
	if len(data) == 0 {
		return &FulfillmentRecord{SessionID: sessionID, Status: StatusInProgress, ClaimedAt: s.nowFunc().Unix()}, nil
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode marker %s: %w", sessionID, err)
	}
	return &rec, nil
}

// IsProcessed reports whether the session has been fulfilled.
func (s *DiskStore) IsProcessed(ctx context.Context, sessionID string) (bool, error) {
	rec, err := s.Get(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return rec != nil && rec.Status == StatusDone, nil
}

// Claim creates an IN_PROGRESS marker, or takes over a FAILED / stale one.
func (s *DiskStore) Claim(ctx context.Context, sessionID string) (bool, error) {
	p, err := s.path(sessionID)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	rec := FulfillmentRecord{
		SessionID: sessionID,
		Status:    StatusInProgress,
		ClaimedAt: now.Unix(),
		UpdatedAt: now.UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("marshal marker: %w", err)
	}

	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	switch {
	case err == nil:
		_, werr := f.Write(data)
		cerr := f.Close()
		if werr != nil || cerr != nil {
			return false, fmt.Errorf("write marker: %w", errors.Join(werr, cerr))
		}
		return true, nil
	case !errors.Is(err, os.ErrExist):
		return false, fmt.Errorf("create marker: %w", err)
	}

	existing, err := s.Get(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if existing == nil || !existing.reclaimable(now, s.claimTimeout) {
		return false, nil
	}
	if err := diskutil.WriteFileAtomic(p, data); err != nil {
		return false, err
	}
	return true, nil
}

// Release marks a live claim FAILED. DONE or missing markers are left alone.
func (s *DiskStore) Release(ctx context.Context, sessionID, note string) error {
	p, err := s.path(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if rec == nil || rec.Status != StatusInProgress {
		return nil
	}
	rec.Status = StatusFailed
	rec.Note = note
	rec.UpdatedAt = s.nowFunc().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal marker: %w", err)
	}
	return diskutil.WriteFileAtomic(p, data)
}

// MarkProcessed writes a DONE marker unless one already exists.
func (s *DiskStore) MarkProcessed(ctx context.Context, sessionID, runID string) error {
	p, err := s.path(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if rec != nil && rec.Status == StatusDone {
		return nil
	}
	now := s.nowFunc().UTC()
	done := FulfillmentRecord{
		SessionID:   sessionID,
		Status:      StatusDone,
		ClaimedAt:   now.Unix(),
		ProcessedAt: &now,
		RunID:       runID,
		UpdatedAt:   now,
	}
	if rec != nil {
		done.ClaimedAt = rec.ClaimedAt
	}
	data, err := json.Marshal(done)
	if err != nil {
		return fmt.Errorf("marshal marker: %w", err)
	}
	return diskutil.WriteFileAtomic(p, data)
}
