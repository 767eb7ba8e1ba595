// Package userdata reads tasks, the profile, and the food journal from a
// YAML document maintained by the host application.
package userdata

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	domain "nudge/internal/domain/userdata"
	"nudge/internal/infra/filestore"
)

// Document is the on-disk layout.
type Document struct {
	Profile domain.Profile     `yaml:"profile"`
	Tasks   []domain.Task      `yaml:"tasks"`
	Food    []domain.FoodEntry `yaml:"food"`
}

// Static serves a fixed Document. It satisfies all three source interfaces.
type Static struct {
	Doc Document
	// Err, if set, is returned from every call.
	Err error
}

var (
	_ domain.TaskSource    = (*Static)(nil)
	_ domain.ProfileSource = (*Static)(nil)
	_ domain.FoodJournal   = (*Static)(nil)
)

func (s *Static) PendingTasks(_ context.Context, q domain.TaskQuery) ([]domain.Task, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return q.Filter(s.Doc.Tasks), nil
}

func (s *Static) Profile(context.Context) (domain.Profile, error) {
	if s.Err != nil {
		return domain.Profile{}, s.Err
	}
	return s.Doc.Profile, nil
}

func (s *Static) RecentEntries(_ context.Context, since time.Time) ([]domain.FoodEntry, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return recent(s.Doc.Food, since), nil
}

func recent(entries []domain.FoodEntry, since time.Time) []domain.FoodEntry {
	out := make([]domain.FoodEntry, 0, len(entries))
	for _, e := range entries {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// FileSource reads a Document from a YAML file, re-reading it whenever its
// modification time changes. A missing file reads as an empty document.
type FileSource struct {
	path string

	mu      sync.Mutex
	doc     Document
	modTime time.Time
	loaded  bool
}

var (
	_ domain.TaskSource    = (*FileSource)(nil)
	_ domain.ProfileSource = (*FileSource)(nil)
	_ domain.FoodJournal   = (*FileSource)(nil)
)

// NewFileSource returns a FileSource for path ("~" and env vars expanded).
func NewFileSource(path string) *FileSource {
	return &FileSource{path: filestore.ResolvePath(path, "")}
}

func (s *FileSource) load() (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.doc, s.loaded = Document{}, true
		return s.doc, nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("stat user data: %w", err)
	}
	if s.loaded && info.ModTime().Equal(s.modTime) {
		return s.doc, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return Document{}, fmt.Errorf("read user data: %w", err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("parse user data %s: %w", s.path, err)
	}
	s.doc, s.modTime, s.loaded = doc, info.ModTime(), true
	return doc, nil
}

func (s *FileSource) PendingTasks(_ context.Context, q domain.TaskQuery) ([]domain.Task, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return q.Filter(doc.Tasks), nil
}

func (s *FileSource) Profile(context.Context) (domain.Profile, error) {
	doc, err := s.load()
	if err != nil {
		return domain.Profile{}, err
	}
	return doc.Profile, nil
}

func (s *FileSource) RecentEntries(_ context.Context, since time.Time) ([]domain.FoodEntry, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return recent(doc.Food, since), nil
}

// Save writes doc atomically.
func (s *FileSource) Save(doc Document) error {
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshal user data: %w", err)
	}
	if err := filestore.AtomicWrite(s.path, data, 0o600); err != nil {
		return err
	}
	s.mu.Lock()
	s.loaded = false
	s.mu.Unlock()
	return nil
}
