package scene

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Store exposes scene retrieval for handlers and the chat service.
type Store interface {
	List() []Scene
	FindByID(id string) (Scene, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Scene
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied scenes.
func NewMemoryStore(items []Scene) *MemoryStore {
	return &MemoryStore{items: append([]Scene(nil), items...)}
}

// List returns the scene catalog in declaration order.
func (s *MemoryStore) List() []Scene {
	return append([]Scene(nil), s.items...)
}

// FindByID looks up a scene by identifier.
func (s *MemoryStore) FindByID(id string) (Scene, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Scene{}, false
}

// catalogFile is the on-disk layout of a scene catalog.
//
//	scenes:
//	  - id: cafe
//	    title: Cafe
//	    personaName: Locus
//	    role: barista
type catalogFile struct {
	Scenes []Scene `yaml:"scenes"`
}

// LoadFile reads a YAML scene catalog from disk.
func LoadFile(path string) ([]Scene, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scene catalog %q: %w", path, err)
	}
	defer f.Close()

	scenes, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("parse scene catalog %q: %w", path, err)
	}
	return scenes, nil
}

// Load parses a YAML scene catalog. Unknown keys are rejected.
func Load(r io.Reader) ([]Scene, error) {
	var file catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode scene yaml: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Scenes))
	for i, item := range file.Scenes {
		if item.ID == "" {
			return nil, fmt.Errorf("scene %d: id is required", i)
		}
		if _, dup := seen[item.ID]; dup {
			return nil, fmt.Errorf("scene %q declared twice", item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return file.Scenes, nil
}
