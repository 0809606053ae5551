package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/zhouzirui/locus/backend/internal/model/chat"
)

// JSONStore keeps every log in memory and rewrites one JSON array file on
// each mutation.
type JSONStore struct {
	path string

	mu   sync.RWMutex
	logs []chat.ChatLog
}

// OpenJSON loads path. A missing file is an empty store; an unreadable one is
// moved aside to path+".corrupt" so the next write does not destroy it.
func OpenJSON(path string) (*JSONStore, error) {
	store := &JSONStore{path: path}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return store, nil
	case err != nil:
		return nil, fmt.Errorf("read chat logs %q: %w", path, err)
	}

	if len(data) == 0 {
		return store, nil
	}

	var logs []chat.ChatLog
	if err := json.Unmarshal(data, &logs); err != nil {
		log.Printf("[transcript] failed to decode %s: %v", path, err)
		if renameErr := os.Rename(path, path+".corrupt"); renameErr != nil {
			log.Printf("[transcript] failed to move corrupt file aside: %v", renameErr)
		}
		return store, nil
	}

	store.logs = logs
	log.Printf("[transcript] loaded %d chat logs from %s", len(logs), path)
	return store, nil
}

// Add appends cl and rewrites the file.
func (s *JSONStore) Add(_ context.Context, cl chat.ChatLog) (chat.ChatLog, error) {
	cl = cloneLog(prepare(cl))

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs = append(s.logs, cl)
	if err := s.persistLocked(); err != nil {
		return cloneLog(cl), err
	}
	return cloneLog(cl), nil
}

// Delete removes the log with id and rewrites the file.
func (s *JSONStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.logs {
		if s.logs[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotFound
	}

	s.logs = append(s.logs[:idx:idx], s.logs[idx+1:]...)
	return s.persistLocked()
}

// List returns the logs in insertion order.
func (s *JSONStore) List(_ context.Context) ([]chat.ChatLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.ChatLog, 0, len(s.logs))
	for _, cl := range s.logs {
		out = append(out, cloneLog(cl))
	}
	return out, nil
}

func (s *JSONStore) Get(_ context.Context, id string) (chat.ChatLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, cl := range s.logs {
		if cl.ID == id {
			return cloneLog(cl), nil
		}
	}
	return chat.ChatLog{}, ErrNotFound
}

func (s *JSONStore) Close() error {
	return nil
}

// persistLocked writes the whole collection through a temp file and rename.
func (s *JSONStore) persistLocked() error {
	logs := s.logs
	if logs == nil {
		logs = []chat.ChatLog{}
	}

	data, err := json.MarshalIndent(logs, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrPersist, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("[transcript] create dir %s: %v", dir, err)
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		log.Printf("[transcript] create temp file: %v", err)
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		log.Printf("[transcript] write temp file: %v", err)
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		log.Printf("[transcript] replace %s: %v", s.path, err)
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}
