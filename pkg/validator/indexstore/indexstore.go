// Package indexstore persists a published-name index between runs, so a
// later run can skip the indexing phase and still check referential
// integrity of match files.
package indexstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/neuronbridge/nbvalidate/pkg/validator/model"
)

// SchemaVersion is the version of the snapshot layout. Bump it when Header
// or the encoded body changes incompatibly.
const SchemaVersion = "1"

const (
	FormatMsgpack = "msgpack"
	FormatJSON    = "json"
	DefaultFormat = FormatMsgpack
)

var (
	// ErrIndexLoad indicates a snapshot exists but could not be used: it is
	// unreadable, corrupt, or written by an incompatible version.
	ErrIndexLoad = errors.New("failed to load name index")

	// ErrIndexPersist indicates the snapshot could not be written.
	ErrIndexPersist = errors.New("failed to persist name index")
)

// Header opens every snapshot.
type Header struct {
	SchemaVersion string `json:"schemaVersion" msgpack:"schemaVersion"`
	ToolVersion   string `json:"toolVersion" msgpack:"toolVersion"`
	DataVersion   string `json:"dataVersion,omitempty" msgpack:"dataVersion,omitempty"`
}

type jsonSnapshot struct {
	Header Header   `json:"header"`
	Names  []string `json:"names"`
}

// Store reads and writes index snapshots.
type Store interface {
	// Load returns the stored index. A missing file yields (nil, nil).
	Load(path string) (model.NameIndex, error)
	// Persist atomically replaces the file at path with index.
	Persist(path string, index model.NameIndex) error
}

type fileStore struct {
	logger      *slog.Logger
	toolVersion string
	dataVersion string
	format      string
}

// NewFileStore returns a Store for the given format ("msgpack" or "json";
// anything else falls back to msgpack). toolVersion "dev" is compatible with
// every other tool version.
func NewFileStore(loggerHandler slog.Handler, toolVersion, dataVersion, format string) Store {
	if loggerHandler == nil {
		loggerHandler = slog.DiscardHandler
	}
	format = strings.ToLower(format)
	if format != FormatJSON && format != FormatMsgpack {
		format = DefaultFormat
	}
	if toolVersion == "" {
		toolVersion = "dev"
	}
	return &fileStore{
		logger: slog.New(loggerHandler).With(
			slog.String("component", "indexStore"),
			slog.String("format", format)),
		toolVersion: toolVersion,
		dataVersion: dataVersion,
		format:      format,
	}
}

// Load implements Store.
func (s *fileStore) Load(path string) (model.NameIndex, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Info("Index snapshot not found", slog.String("path", path))
			return nil, nil
		}
		return nil, fmt.Errorf("%w: opening %s: %w", ErrIndexLoad, path, err)
	}
	defer file.Close()

	var (
		header Header
		names  []string
	)
	if s.format == FormatJSON {
		var snap jsonSnapshot
		if err := json.NewDecoder(file).Decode(&snap); err != nil {
			return nil, fmt.Errorf("%w: decoding %s: %w", ErrIndexLoad, path, err)
		}
		header, names = snap.Header, snap.Names
	} else {
		dec := msgpack.NewDecoder(file)
		if err := dec.Decode(&header); err != nil {
			return nil, fmt.Errorf("%w: decoding header of %s: %w", ErrIndexLoad, path, err)
		}
		if err := dec.Decode(&names); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: decoding names of %s: %w", ErrIndexLoad, path, err)
		}
	}

	if header.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: %s has schema version %q, expected %q", ErrIndexLoad, path, header.SchemaVersion, SchemaVersion)
	}
	if header.ToolVersion != s.toolVersion && header.ToolVersion != "dev" && s.toolVersion != "dev" {
		return nil, fmt.Errorf("%w: %s was written by version %q, running %q", ErrIndexLoad, path, header.ToolVersion, s.toolVersion)
	}
	if s.dataVersion != "" && header.DataVersion != "" && header.DataVersion != s.dataVersion {
		s.logger.Warn("Index snapshot was built from a different data release",
			slog.String("path", path),
			slog.String("snapshotData", header.DataVersion),
			slog.String("currentData", s.dataVersion))
	}

	index := model.NameIndexFrom(names)
	s.logger.Info("Index snapshot loaded", slog.String("path", path), slog.Int("names", index.Len()))
	return index, nil
}

// Persist implements Store.
func (s *fileStore) Persist(path string, index model.NameIndex) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %w", ErrIndexPersist, dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: creating temporary file in %s: %w", ErrIndexPersist, dir, err)
	}
	tmpPath := tmp.Name()
	closed := false
	defer func() {
		if !closed {
			_ = tmp.Close()
		}
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	header := Header{SchemaVersion: SchemaVersion, ToolVersion: s.toolVersion, DataVersion: s.dataVersion}
	names := index.Names()
	if s.format == FormatJSON {
		enc := json.NewEncoder(tmp)
		enc.SetIndent("", "  ")
		err = enc.Encode(jsonSnapshot{Header: header, Names: names})
	} else {
		enc := msgpack.NewEncoder(tmp)
		if err = enc.Encode(&header); err == nil {
			err = enc.Encode(names)
		}
	}
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %w", ErrIndexPersist, tmpPath, err)
	}

	closed = true
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %w", ErrIndexPersist, tmpPath, err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: renaming %s to %s: %w", ErrIndexPersist, tmpPath, path, err)
	}
	s.logger.Info("Index snapshot persisted", slog.String("path", path), slog.Int("names", len(names)))
	return nil
}
