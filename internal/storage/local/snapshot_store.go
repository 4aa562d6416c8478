// Package local implements a JSON-file snapshot store.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/libertymp-tools/invcrawler/internal/scraper"
)

// Config captures the parameters for the file-backed snapshot store.
type Config struct {
	// DBFile is the path of the primary store file. The index file is
	// written next to it with a "_lookup" suffix.
	DBFile string `mapstructure:"db_file" yaml:"db_file"`
}

// SnapshotStore persists the cache as two human-readable JSON files.
type SnapshotStore struct {
	dbFile    string
	indexFile string
}

// New creates a file-backed snapshot store, ensuring the parent
// directory exists and is writable.
func New(cfg Config) (*SnapshotStore, error) {
	if strings.TrimSpace(cfg.DBFile) == "" {
		return nil, fmt.Errorf("db file path is required")
	}
	dir := filepath.Dir(cfg.DBFile)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	return &SnapshotStore{
		dbFile:    cfg.DBFile,
		indexFile: indexFileFor(cfg.DBFile),
	}, nil
}

func indexFileFor(dbFile string) string {
	ext := filepath.Ext(dbFile)
	if ext == "" {
		return dbFile + "_lookup"
	}
	return strings.TrimSuffix(dbFile, ext) + "_lookup" + ext
}

// SaveSnapshot fully rewrites both files: the primary store as
// name to record, and the index as key to the sorted list of owners.
func (s *SnapshotStore) SaveSnapshot(
	_ context.Context,
	players map[string]scraper.PlayerRecord,
	index map[string]map[string]int,
) error {
	playersJSON, err := json.MarshalIndent(players, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal players: %w", err)
	}
	if err := os.WriteFile(s.dbFile, playersJSON, 0o600); err != nil {
		return fmt.Errorf("write players file: %w", err)
	}

	lookup := make(map[string][]string, len(index))
	for key, owners := range index {
		names := make([]string, 0, len(owners))
		for name := range owners {
			names = append(names, name)
		}
		sort.Strings(names)
		lookup[key] = names
	}
	lookupJSON, err := json.MarshalIndent(lookup, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal lookup: %w", err)
	}
	if err := os.WriteFile(s.indexFile, lookupJSON, 0o600); err != nil {
		return fmt.Errorf("write lookup file: %w", err)
	}
	return nil
}

// LoadPlayers reads the primary store file. A missing file yields an
// empty map; a corrupt file is an error the caller may degrade on.
func (s *SnapshotStore) LoadPlayers(_ context.Context) (map[string]scraper.PlayerRecord, error) {
	data, err := os.ReadFile(s.dbFile)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]scraper.PlayerRecord), nil
		}
		return nil, fmt.Errorf("read players file: %w", err)
	}

	players := make(map[string]scraper.PlayerRecord)
	if err := json.Unmarshal(data, &players); err != nil {
		return nil, fmt.Errorf("decode players file: %w", err)
	}
	return players, nil
}
