// Package fsblob implements the payload store on the local filesystem.
//
// On-disk format, one file per snapshot id, named <id>.snap:
//
//	bytes 0..3   magic "SNP1"
//	bytes 4..11  big-endian uint64 length of the uncompressed JSON document
//	bytes 12..   gzip-compressed canonical JSON encoding of the payload
//
// The format is the payload store's documented serialization contract; any
// reimplementation must produce byte-compatible files.
package fsblob

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"market-snapshot-lab/internal/domain"
	"market-snapshot-lab/internal/observability"
	"market-snapshot-lab/internal/storage"
)

var magic = [4]byte{'S', 'N', 'P', '1'}

// fileExt is the payload file extension.
const fileExt = ".snap"

// Store is a filesystem-backed payload store. Files are written atomically
// (temp file + rename) and named per snapshot id, so concurrent writes for
// different ids never contend.
type Store struct {
	dir    string
	logger *zap.Logger
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create payload dir: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Compile-time interface check.
var _ storage.PayloadStore = (*Store)(nil)

// Write persists the payload under the snapshot id and returns the opaque
// location reference (the file name relative to the store root).
func (s *Store) Write(_ context.Context, id string, payload domain.RawPayload) (string, error) {
	if id == "" || payload == nil {
		return "", storage.ErrInvalidInput
	}

	doc, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(magic[:])
	if err := binary.Write(&buf, binary.BigEndian, uint64(len(doc))); err != nil {
		return "", fmt.Errorf("write payload header: %w", err)
	}

	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(doc); err != nil {
		return "", fmt.Errorf("compress payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("finish payload compression: %w", err)
	}

	name := id + fileExt
	tmp, err := os.CreateTemp(s.dir, name+".tmp*")
	if err != nil {
		return "", fmt.Errorf("create temp payload file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write payload file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close payload file: %w", err)
	}

	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("rename payload file: %w", err)
	}

	observability.DefaultMetrics.PayloadBytesWritten.Add(float64(len(doc)))
	s.logger.Debug("payload written",
		zap.String("snapshot_id", id),
		zap.String("location", name),
		zap.Int("uncompressed_bytes", len(doc)))

	return name, nil
}

// Read loads a payload from a location previously returned by Write.
// A missing or corrupt file surfaces as ErrPayloadUnavailable so callers
// can distinguish it from a missing metadata row.
func (s *Store) Read(_ context.Context, location string) (domain.RawPayload, error) {
	if location == "" || filepath.Base(location) != location || !strings.HasSuffix(location, fileExt) {
		return nil, storage.ErrInvalidInput
	}

	data, err := os.ReadFile(filepath.Join(s.dir, location))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", storage.ErrPayloadUnavailable, location, err)
	}

	if len(data) < len(magic)+8 || !bytes.Equal(data[:len(magic)], magic[:]) {
		return nil, fmt.Errorf("%w: %s: bad header", storage.ErrPayloadUnavailable, location)
	}
	wantLen := binary.BigEndian.Uint64(data[len(magic) : len(magic)+8])

	zr, err := gzip.NewReader(bytes.NewReader(data[len(magic)+8:]))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", storage.ErrPayloadUnavailable, location, err)
	}
	defer zr.Close()

	doc, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", storage.ErrPayloadUnavailable, location, err)
	}
	if uint64(len(doc)) != wantLen {
		return nil, fmt.Errorf("%w: %s: length mismatch (header %d, got %d)",
			storage.ErrPayloadUnavailable, location, wantLen, len(doc))
	}

	var payload domain.RawPayload
	if err := json.Unmarshal(doc, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", storage.ErrPayloadUnavailable, location, err)
	}

	return payload, nil
}
