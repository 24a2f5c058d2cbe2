package alerts

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"farmwatch/internal/model"
)

// MemoryStore keeps alerts in process. Ids come from a snowflake node so
// they stay unique across processes sharing a node layout.
type MemoryStore struct {
	mu    sync.RWMutex
	node  *snowflake.Node
	buf   []model.Alert
	index map[string]int
	now   func() time.Time
}

func NewMemoryStore(nodeID int64) (*MemoryStore, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{
		node:  node,
		index: make(map[string]int),
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *MemoryStore) Create(_ context.Context, d Draft) (string, error) {
	d, err := Normalize(d)
	if err != nil {
		return "", err
	}
	id := s.node.Generate().String()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[id] = len(s.buf)
	s.buf = append(s.buf, model.Alert{
		ID:        id,
		Title:     d.Title,
		Message:   d.Message,
		Priority:  d.Priority,
		Source:    d.Source,
		CreatedAt: s.now(),
	})
	return id, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return model.Alert{}, ErrNotFound
	}
	return copyAlert(s.buf[i]), nil
}

// List walks the buffer backwards; append order is creation order.
func (s *MemoryStore) List(_ context.Context, unreadOnly bool, limit int) ([]model.Alert, error) {
	limit = Limit(limit)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Alert, 0, min(limit, len(s.buf)))
	for i := len(s.buf) - 1; i >= 0 && len(out) < limit; i-- {
		if unreadOnly && s.buf[i].Read {
			continue
		}
		out = append(out, copyAlert(s.buf[i]))
	}
	return out, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return ErrNotFound
	}
	s.buf[i].Read = true
	return nil
}

func (s *MemoryStore) Resolve(_ context.Context, id, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return ErrNotFound
	}
	a := &s.buf[i]
	a.Read = true
	if a.Resolved {
		return nil
	}
	ts := s.now()
	a.Resolved = true
	a.ResolutionNote = note
	a.ResolvedAt = &ts
	return nil
}

func copyAlert(a model.Alert) model.Alert {
	if a.ResolvedAt != nil {
		ts := *a.ResolvedAt
		a.ResolvedAt = &ts
	}
	return a
}
