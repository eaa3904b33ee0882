package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// FileName is the manifest file written next to a symbol's artifacts.
const FileName = "manifest.json"

// DataFile describes a single parquet artifact produced by a build.
type DataFile struct {
	Timeframe     string    `json:"timeframe"`
	Path          string    `json:"path"`
	FileSize      int64     `json:"file_size_in_bytes"`
	RecordCount   int64     `json:"record_count"`
	FirstOpenTime time.Time `json:"first_open_time"`
	LastOpenTime  time.Time `json:"last_open_time"`
}

// Manifest records the artifacts of the latest successful build of a symbol.
// PlannedThrough is the last day of the build's partition plan and Missing
// names the planned partitions that could not be fetched.
type Manifest struct {
	FormatVersion  int        `json:"format-version"`
	BuildID        string     `json:"build-id"`
	Symbol         string     `json:"symbol"`
	AssetCategory  string     `json:"asset_category"`
	BuiltAt        time.Time  `json:"built_at"`
	PlannedThrough time.Time  `json:"planned_through"`
	Missing        []string   `json:"missing_partitions,omitempty"`
	Files          []DataFile `json:"files"`
}

// Canonical returns the entry of the base-resolution artifact.
func (m *Manifest) Canonical() (DataFile, bool) {
	return m.File("")
}

// File returns the entry for timeframe.
func (m *Manifest) File(timeframe string) (DataFile, bool) {
	if m == nil {
		return DataFile{}, false
	}
	for _, f := range m.Files {
		if f.Timeframe == timeframe {
			return f, true
		}
	}
	return DataFile{}, false
}

// Generator collects the artifacts of one build and commits them as a
// manifest once the build is complete.
type Generator struct {
	basePath string
	manifest Manifest
}

// NewGenerator returns a generator writing into basePath.
func NewGenerator(basePath, category, symbol string) *Generator {
	return &Generator{
		basePath: basePath,
		manifest: Manifest{
			FormatVersion: 1,
			BuildID:       uuid.NewString(),
			Symbol:        symbol,
			AssetCategory: category,
		},
	}
}

// SetCoverage records the plan horizon of the build and the partitions it
// could not fetch.
func (g *Generator) SetCoverage(plannedThrough time.Time, missing []string) {
	g.manifest.PlannedThrough = plannedThrough.UTC()
	g.manifest.Missing = append([]string(nil), missing...)
}

// BuildID identifies the build being recorded.
func (g *Generator) BuildID() string { return g.manifest.BuildID }

// AddFile records a newly written artifact. The file size is read from disk
// when not set.
func (g *Generator) AddFile(df DataFile) error {
	if df.FileSize == 0 {
		info, err := os.Stat(df.Path)
		if err != nil {
			return fmt.Errorf("stat artifact: %w", err)
		}
		df.FileSize = info.Size()
	}
	g.manifest.Files = append(g.manifest.Files, df)
	return nil
}

// Commit writes the manifest, replacing any previous one.
func (g *Generator) Commit(builtAt time.Time) (*Manifest, error) {
	m := g.manifest
	m.BuiltAt = builtAt.UTC()
	sort.SliceStable(m.Files, func(i, j int) bool { return m.Files[i].Timeframe < m.Files[j].Timeframe })

	if err := os.MkdirAll(g.basePath, 0o755); err != nil {
		return nil, err
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}

	path := filepath.Join(g.basePath, FileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, err
	}
	return &m, nil
}

// Read loads the manifest in dir. A missing manifest yields nil without error.
func Read(dir string) (*Manifest, error) {
	b, err := os.ReadFile(filepath.Join(dir, FileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}
