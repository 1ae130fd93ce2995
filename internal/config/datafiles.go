package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ramonehamilton/CHUNI-Companion/internal/rating"
)

// Default data file names inside the config directory.
const (
	DefaultNewSongsFile  = "new_songs.yaml"
	DefaultOverridesFile = "const_overrides.yaml"
)

// NewSongTitles lists the titles that count toward the new-songs list,
// grouped by game version.
type NewSongTitles struct {
	Verse  []string `json:"verse" yaml:"verse"`
	XVerse []string `json:"xverse" yaml:"xverse"`
}

// All returns every title, verse first.
func (t NewSongTitles) All() []string {
	out := make([]string, 0, len(t.Verse)+len(t.XVerse))
	out = append(out, t.Verse...)
	return append(out, t.XVerse...)
}

// newSongsFile also accepts the {"titles": {...}} wrapper.
type newSongsFile struct {
	NewSongTitles `yaml:",inline"`
	Titles        *NewSongTitles `json:"titles" yaml:"titles"`
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if isJSON(path) {
		return json.Unmarshal(data, v)
	}
	return yaml.Unmarshal(data, v)
}

// LoadNewSongs reads a new-song title file. JSON files are decoded as JSON,
// everything else as YAML.
func LoadNewSongs(path string) (NewSongTitles, error) {
	var f newSongsFile
	if err := decodeFile(path, &f); err != nil {
		return NewSongTitles{}, fmt.Errorf("failed to load new songs from %s: %w", path, err)
	}
	if f.Titles != nil {
		return *f.Titles, nil
	}
	return f.NewSongTitles, nil
}

// LoadOverrides reads a constant override file: a list of
// {title, diff, const} entries.
func LoadOverrides(path string) ([]rating.ConstOverride, error) {
	var overrides []rating.ConstOverride
	if err := decodeFile(path, &overrides); err != nil {
		return nil, fmt.Errorf("failed to load overrides from %s: %w", path, err)
	}
	for i := range overrides {
		overrides[i].Diff = rating.ParseDifficulty(string(overrides[i].Diff))
	}
	return overrides, nil
}

// DataSnapshot is an immutable view of the loaded data files.
type DataSnapshot struct {
	NewSongs  NewSongTitles
	Overrides []rating.ConstOverride
	LoadedAt  time.Time
}

// DataStore holds the current data files and reloads them on demand.
type DataStore struct {
	newSongsPath  string
	overridesPath string

	mu      sync.RWMutex
	current DataSnapshot
}

// NewDataStore creates a store for the given files. An empty path means
// the corresponding data set is empty.
func NewDataStore(newSongsPath, overridesPath string) *DataStore {
	return &DataStore{newSongsPath: newSongsPath, overridesPath: overridesPath}
}

// NewDataStoreFromConfig resolves the data file paths from cfg, falling
// back to the default names in the config directory.
func NewDataStoreFromConfig(cfg DataConfig) *DataStore {
	newSongs, overrides := cfg.NewSongsFile, cfg.OverridesFile
	if newSongs == "" || overrides == "" {
		if dir, err := Dir(); err == nil {
			if newSongs == "" {
				newSongs = filepath.Join(dir, DefaultNewSongsFile)
			}
			if overrides == "" {
				overrides = filepath.Join(dir, DefaultOverridesFile)
			}
		}
	}
	return NewDataStore(newSongs, overrides)
}

// Paths returns the watched file paths.
func (s *DataStore) Paths() []string {
	var paths []string
	for _, p := range []string{s.newSongsPath, s.overridesPath} {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// Reload re-reads both files. Missing files load as empty sets. On error
// the previous snapshot stays in place.
func (s *DataStore) Reload() (DataSnapshot, error) {
	var next DataSnapshot

	if s.newSongsPath != "" {
		titles, err := LoadNewSongs(s.newSongsPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return s.Snapshot(), err
		}
		next.NewSongs = titles
	}
	if s.overridesPath != "" {
		overrides, err := LoadOverrides(s.overridesPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return s.Snapshot(), err
		}
		next.Overrides = overrides
	}
	next.LoadedAt = time.Now()

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return next, nil
}

// Set replaces the snapshot directly.
func (s *DataStore) Set(snap DataSnapshot) {
	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()
}

// Snapshot returns the current data.
func (s *DataStore) Snapshot() DataSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}
