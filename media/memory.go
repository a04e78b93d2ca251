package media

import (
	"context"
	"io"
	"sync"

	"campussnap/models"

	"github.com/oklog/ulid/v2"
)

// Memory keeps uploads in process.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
	failing error
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// Fail makes every later Upload and Destroy return err. nil restores service.
func (m *Memory) Fail(err error) {
	m.mu.Lock()
	m.failing = err
	m.mu.Unlock()
}

func (m *Memory) err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failing
}

func (m *Memory) Upload(_ context.Context, r io.Reader, folder string) (models.Media, error) {
	if err := m.err(); err != nil {
		return models.Media{}, err
	}
	kind, body, err := Sniff(r)
	if err != nil {
		return models.Media{}, err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return models.Media{}, err
	}

	id := folder + "/" + ulid.Make().String()
	m.mu.Lock()
	m.objects[id] = data
	m.mu.Unlock()
	return models.Media{URL: "memory://" + id, PublicID: id, Type: kind}, nil
}

func (m *Memory) Destroy(_ context.Context, media models.Media) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing != nil {
		return m.failing
	}
	delete(m.objects, media.PublicID)
	return nil
}

// Has reports whether publicID is currently stored.
func (m *Memory) Has(publicID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[publicID]
	return ok
}

// Len is the number of stored objects.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
