package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/imrishuroy/leadflow/internal/diskutil"
)

// DiskStore keeps one JSON file per session under dir. It is meant for local
// runs and single-instance deployments on ephemeral disk.
type DiskStore struct {
	dir     string
	ttl     time.Duration
	nowFunc func() time.Time
}

// NewDiskStore creates dir if needed.
func NewDiskStore(dir string, ttl time.Duration) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create orders dir: %w", err)
	}
	return &DiskStore{dir: dir, ttl: ttl, nowFunc: time.Now}, nil
}

func (s *DiskStore) path(sessionID string) (string, error) {
	if !ValidSessionID(sessionID) {
		return "", fmt.Errorf("%w: bad session id %q", ErrInvalidOrder, sessionID)
	}
	return filepath.Join(s.dir, sessionID+".json"), nil
}

// Put writes the order atomically via a temp file and rename.
func (s *DiskStore) Put(ctx context.Context, order PendingOrder) error {
	if err := order.Validate(); err != nil {
		return err
	}
	order.stamp(s.nowFunc(), s.ttl)
	p, err := s.path(order.SessionID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	return diskutil.WriteFileAtomic(p, data)
}

// Get returns (nil, nil) when no order is stored for sessionID.
func (s *DiskStore) Get(ctx context.Context, sessionID string) (*PendingOrder, error) {
	p, err := s.path(sessionID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read order: %w", err)
	}
	var o PendingOrder
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("decode order %s: %w", sessionID, err)
	}
	return &o, nil
}

// Delete is a no-op when the order is already gone.
func (s *DiskStore) Delete(ctx context.Context, sessionID string) error {
	p, err := s.path(sessionID)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete order: %w", err)
	}
	return nil
}

// PurgeExpired removes orders whose expiry is before now. Unreadable files are
// skipped so one corrupt record does not block the sweep.
func (s *DiskStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("list orders: %w", err)
	}
	purged := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		o, err := s.Get(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil || o == nil {
			continue
		}
		if o.ExpiresAt == 0 || o.ExpiresAt >= now.Unix() {
			continue
		}
		if err := s.Delete(ctx, o.SessionID); err != nil {
			return purged, err
		}
		purged++
	}
	return purged, nil
}
