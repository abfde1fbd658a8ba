package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"survey-dashboard/models"
)

// MemoryStore keeps survey responses in process memory. It backs development
// mode and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	order    []string
	rows     map[string]*models.StoredResponse
	boundary []byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]*models.StoredResponse)}
}

func (m *MemoryStore) List(ctx context.Context) ([]*models.StoredResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.StoredResponse, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, cloneResponse(m.rows[id]))
	}
	return out, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.StoredResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneResponse(r), nil
}

func (m *MemoryStore) Create(ctx context.Context, r *models.StoredResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prepareNew(r)
	if _, exists := m.rows[r.ID]; exists {
		return fmt.Errorf("memory: create: %w: %s", ErrDuplicateID, r.ID)
	}
	m.insert(r)
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, answers map[string]string, updatedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	updated := cloneResponse(r)
	updated.Answers = cloneAnswers(answers)
	updated.UpdatedAt = &now
	updated.UpdatedBy = updatedBy
	m.rows[id] = updated
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rows[id]; !ok {
		return ErrNotFound
	}
	delete(m.rows, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryStore) ImportMany(ctx context.Context, rows []*models.StoredResponse) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{}, len(rows))
	for i, r := range rows {
		prepareNew(r)
		_, stored := m.rows[r.ID]
		_, repeated := seen[r.ID]
		if stored || repeated {
			return 0, fmt.Errorf("memory: import row %d: %w: %s", i+1, ErrDuplicateID, r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	for _, r := range rows {
		m.insert(r)
	}
	return len(rows), nil
}

func (m *MemoryStore) SaveBoundary(ctx context.Context, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boundary = append([]byte(nil), doc...)
	return nil
}

func (m *MemoryStore) LoadBoundary(ctx context.Context) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.boundary == nil {
		return nil, ErrNoBoundary
	}
	return append([]byte(nil), m.boundary...), nil
}

func (m *MemoryStore) DeleteBoundary(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boundary = nil
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// insert expects r.ID to be unused.
func (m *MemoryStore) insert(r *models.StoredResponse) {
	m.order = append(m.order, r.ID)
	m.rows[r.ID] = cloneResponse(r)
}

// prepareNew fills the generated fields of a row about to be inserted.
func prepareNew(r *models.StoredResponse) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.Answers == nil {
		r.Answers = map[string]string{}
	}
}

func cloneResponse(r *models.StoredResponse) *models.StoredResponse {
	c := *r
	c.Answers = cloneAnswers(r.Answers)
	if r.UpdatedAt != nil {
		t := *r.UpdatedAt
		c.UpdatedAt = &t
	}
	return &c
}

func cloneAnswers(a map[string]string) map[string]string {
	out := make(map[string]string, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
