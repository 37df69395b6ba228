// Package config loads the configured entries from a YAML file.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/energystats/pkg/accounting"
	"github.com/raterudder/energystats/pkg/log"
	"github.com/raterudder/energystats/pkg/types"
)

type entryConfig struct {
	ID         string            `yaml:"id"`
	Name       string            `yaml:"name"`
	DailyReset string            `yaml:"dailyReset"`
	Sources    map[string]string `yaml:"sources"`
}

type fileConfig struct {
	Entries []entryConfig `yaml:"entries"`
}

// ParseEntries decodes and validates the entries in buf.
func ParseEntries(buf []byte) ([]types.Entry, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(buf, &fc); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}

	seen := make(map[string]bool, len(fc.Entries))
	entries := make([]types.Entry, 0, len(fc.Entries))
	for i, ec := range fc.Entries {
		e := types.Entry{
			ID:         ec.ID,
			Name:       ec.Name,
			DailyReset: ec.DailyReset,
			Sources:    make(map[types.SourceKey]string, len(ec.Sources)),
		}
		if e.DailyReset == "" {
			e.DailyReset = "00:00"
		}
		for k, v := range ec.Sources {
			key, err := types.ParseSourceKey(k)
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			e.Sources[key] = v
		}
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("entry %d: duplicate id %s", i, e.ID)
		}
		seen[e.ID] = true
		entries = append(entries, e)
	}
	return entries, nil
}

// LoadEntries reads and parses filename.
func LoadEntries(filename string) ([]types.Entry, error) {
	buf, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParseEntries(buf)
}

// Entries holds the currently configured entries.
type Entries struct {
	mu       sync.RWMutex
	entries  []types.Entry
	filename string
}

// NewEntries creates an Entries holding list.
func NewEntries(list []types.Entry) *Entries {
	e := &Entries{}
	e.Set(list)
	return e
}

// NewFileEntries loads filename and remembers it for Reload.
func NewFileEntries(filename string) (*Entries, error) {
	e := &Entries{filename: filename}
	if _, err := e.Reload(); err != nil {
		return nil, err
	}
	return e, nil
}

// Configured loads the entries file named by the entries-config flag.
func Configured() *Entries {
	filename := lflag.RequiredString("entries-config", "path to the YAML file listing the configured entries")

	e := &Entries{}
	lflag.Do(func() {
		e.filename = *filename
		if _, err := e.Reload(); err != nil {
			panic(fmt.Sprintf("failed to load entries: %v", err))
		}
	})
	return e
}

// Reload re-reads the entries file. On error the current entries are kept.
func (e *Entries) Reload() ([]types.Entry, error) {
	e.mu.RLock()
	filename := e.filename
	e.mu.RUnlock()
	if filename == "" {
		return nil, fmt.Errorf("entries were not loaded from a file")
	}

	list, err := LoadEntries(filename)
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	for _, entry := range list {
		if _, err := accounting.ParseResetTime(entry.DailyReset); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "invalid daily reset, using midnight", slog.String("entryID", entry.ID), slog.Any("error", err))
		}
	}
	e.Set(list)
	return e.List(), nil
}

// List returns a copy of the entries.
func (e *Entries) List() []types.Entry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]types.Entry, len(e.entries))
	copy(out, e.entries)
	return out
}

// Set replaces the entries.
func (e *Entries) Set(list []types.Entry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = make([]types.Entry, len(list))
	copy(e.entries, list)
}
