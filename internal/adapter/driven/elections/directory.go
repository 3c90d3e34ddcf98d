// Package elections implements the ElectionDirectory port on a YAML file kept
// in sync by the election administration tooling.
package elections

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/ballotbox/internal/domain/model"
	"github.com/ericfisherdev/ballotbox/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ElectionDirectory = (*FileDirectory)(nil)

// fileFormat is the on-disk layout:
//
//	elections:
//	  - id: agm-2026
//	    question: Approve the 2026 budget?
//	    status: published
//	    starts_at: 2026-03-14T09:00:00Z
//	    ends_at: 2026-03-14T21:00:00Z
type fileFormat struct {
	Elections []electionEntry `yaml:"elections"`
}

type electionEntry struct {
	ID       string    `yaml:"id"`
	Question string    `yaml:"question"`
	Status   string    `yaml:"status"`
	StartsAt time.Time `yaml:"starts_at"`
	EndsAt   time.Time `yaml:"ends_at"`
}

// FileDirectory serves elections from a YAML file. The file is re-read when
// its modification time changes so status transitions take effect without a
// restart. A file that fails to parse keeps the last good snapshot.
type FileDirectory struct {
	path string

	mu        sync.Mutex
	modTime   time.Time
	size      int64
	elections map[string]model.Election
}

// NewFileDirectory loads path and fails when it is missing or invalid.
func NewFileDirectory(path string) (*FileDirectory, error) {
	d := &FileDirectory{path: path}
	if err := d.reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// Get returns the election with id, or nil, nil when unknown.
func (d *FileDirectory) Get(_ context.Context, id string) (*model.Election, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.refreshLocked(); err != nil {
		return nil, err
	}

	e, ok := d.elections[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (d *FileDirectory) reload() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loadLocked()
}

func (d *FileDirectory) refreshLocked() error {
	info, err := os.Stat(d.path)
	if err != nil {
		return fmt.Errorf("stat election directory: %w", err)
	}
	if info.ModTime().Equal(d.modTime) && info.Size() == d.size {
		return nil
	}
	if err := d.loadLocked(); err != nil {
		slog.Warn("election directory reload failed, keeping previous snapshot", "path", d.path, "error", err)
		d.modTime = info.ModTime()
		d.size = info.Size()
	}
	return nil
}

func (d *FileDirectory) loadLocked() error {
	info, err := os.Stat(d.path)
	if err != nil {
		return fmt.Errorf("stat election directory: %w", err)
	}
	data, err := os.ReadFile(d.path)
	if err != nil {
		return fmt.Errorf("read election directory: %w", err)
	}

	elections, err := Parse(data)
	if err != nil {
		return fmt.Errorf("load %s: %w", d.path, err)
	}

	d.elections = elections
	d.modTime = info.ModTime()
	d.size = info.Size()
	return nil
}

// Parse decodes and validates a directory document. Duplicate IDs are rejected.
func Parse(data []byte) (map[string]model.Election, error) {
	var doc fileFormat
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse election directory: %w", err)
	}

	elections := make(map[string]model.Election, len(doc.Elections))
	for i, entry := range doc.Elections {
		e := model.Election{
			ID:       entry.ID,
			Question: entry.Question,
			Status:   model.ElectionStatus(entry.Status),
			StartsAt: entry.StartsAt.UTC(),
			EndsAt:   entry.EndsAt.UTC(),
		}
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("election #%d: %w", i+1, err)
		}
		if _, dup := elections[e.ID]; dup {
			return nil, fmt.Errorf("election %s defined twice", e.ID)
		}
		elections[e.ID] = e
	}
	return elections, nil
}
