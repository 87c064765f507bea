package objstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryGateway keeps artifact bytes in memory for local development when
// no object store is configured.
type MemoryGateway struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{objects: make(map[string][]byte)}
}

func (g *MemoryGateway) Save(_ context.Context, fileName string, file []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.objects[fileName] = append([]byte(nil), file...)
	return nil
}

func (g *MemoryGateway) Presign(_ context.Context, fileName string) (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.objects[fileName]; !ok {
		return "", fmt.Errorf("object %s not found", fileName)
	}
	return "memory://media/" + fileName, nil
}

func (g *MemoryGateway) Delete(_ context.Context, fileName string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.objects, fileName)
	return nil
}

// Object returns the stored bytes, for tests.
func (g *MemoryGateway) Object(fileName string) ([]byte, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	object, ok := g.objects[fileName]
	return object, ok
}
