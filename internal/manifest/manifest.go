// Package manifest reads and writes the on-disk manifests that describe a
// dataset's source and signal column groups.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rowlake/dataset/internal/dserr"
	"github.com/rowlake/dataset/internal/schema"
)

const (
	// SourceManifestFilename is the fixed filename of the source manifest.
	SourceManifestFilename = "manifest.json"
	// SignalManifestSuffix identifies a signal manifest sibling file.
	SignalManifestSuffix = "signal_manifest.json"
)

// SourceManifest records the source schema and the tables/files backing it.
type SourceManifest struct {
	Namespace   string         `json:"namespace"`
	DatasetName string         `json:"dataset_name"`
	DataSchema  *schema.Schema `json:"data_schema"`
	Files       []string       `json:"files"`
}

// SignalManifest records a signal's computed column group.
type SignalManifest struct {
	Files             []string         `json:"files"`
	ParquetID         string           `json:"parquet_id"`
	DataSchema        *schema.Schema   `json:"data_schema"`
	Signal            json.RawMessage  `json:"signal"`
	EnrichedPath      schema.PathTuple `json:"enriched_path"`
	EmbeddingFilename string           `json:"embedding_filename,omitempty"`
}

// RootColumn returns the signal manifest's single enriched top-level field
// name (the field that isn't uuid).
func (m *SignalManifest) RootColumn() (string, error) {
	var names []string
	for name := range m.DataSchema.Fields {
		names = append(names, name)
	}
	if len(names) != 2 {
		return "", dserr.InvalidSchema("expected exactly two fields in signal manifest (uuid + root), got %v", names)
	}
	for _, n := range names {
		if n != schema.UUIDColumn {
			return n, nil
		}
	}
	return "", dserr.InvalidSchema("signal manifest has no non-uuid root field: %v", names)
}

// ReadSourceManifest reads manifest.json from datasetPath.
func ReadSourceManifest(datasetPath string) (*SourceManifest, error) {
	p := filepath.Join(datasetPath, SourceManifestFilename)
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dserr.NotFound("source manifest not found at %s", p)
		}
		return nil, dserr.IOError(err, "read source manifest %s", p)
	}
	var m SourceManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, dserr.IOError(err, "parse source manifest %s", p)
	}
	return &m, nil
}

// DiscoverSignalManifests walks datasetPath for every *.signal_manifest.json
// file and parses it.
func DiscoverSignalManifests(datasetPath string) ([]*SignalManifest, error) {
	var out []*SignalManifest
	err := filepath.WalkDir(datasetPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), SignalManifestSuffix) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read signal manifest %s: %w", path, err)
		}
		var m SignalManifest
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("parse signal manifest %s: %w", path, err)
		}
		out = append(out, &m)
		return nil
	})
	if err != nil {
		return nil, dserr.IOError(err, "discover signal manifests under %s", datasetPath)
	}
	return out, nil
}

// WriteSignalManifest writes m as the signal manifest for (sourcePath, signalKey).
func WriteSignalManifest(datasetPath string, sourcePath schema.PathTuple, signalKey string, m *SignalManifest) (string, error) {
	name := SignalManifestFilename(sourcePath, signalKey)
	p := filepath.Join(datasetPath, name)
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", dserr.IOError(err, "marshal signal manifest")
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", dserr.IOError(err, "write signal manifest %s", p)
	}
	return p, nil
}

// SignalFilenamePrefix returns the filename prefix shared by a signal's data
// file and its manifest, e.g. "doc.text.length".
func SignalFilenamePrefix(sourcePath schema.PathTuple, signalKey string) string {
	return fmt.Sprintf("%s.%s", joinPath(sourcePath), signalKey)
}

// SignalManifestFilename returns the manifest filename for a signal.
func SignalManifestFilename(sourcePath schema.PathTuple, signalKey string) string {
	return fmt.Sprintf("%s.%s", SignalFilenamePrefix(sourcePath, signalKey), SignalManifestSuffix)
}

func joinPath(p schema.PathTuple) string {
	parts := make([]string, len(p))
	for i, part := range p {
		parts[i] = fmt.Sprintf("%v", part)
	}
	return strings.Join(parts, ".")
}

// CacheKey computes the maximum mtime (as a unix-nano int64) over every file
// under datasetPath. Any change invalidates the composed view.
func CacheKey(datasetPath string) (int64, error) {
	var maxMTime int64 = -1
	err := filepath.WalkDir(datasetPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if t := info.ModTime().UnixNano(); t > maxMTime {
			maxMTime = t
		}
		return nil
	})
	if err != nil {
		return 0, dserr.IOError(err, "stat dataset directory %s", datasetPath)
	}
	if maxMTime < 0 {
		return 0, dserr.NotFound("dataset directory %s contains no files", datasetPath)
	}
	return maxMTime, nil
}
