package state

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

// SnapshotVersion is the current export format version.
const SnapshotVersion = 1

// Header is the first line of an exported board.
type Header struct {
	Version    int       `json:"version"`
	Turn       int       `json:"turn"`
	ExportedAt time.Time `json:"exported_at"`
	Tasks      int       `json:"tasks"`
	Teams      int       `json:"teams"`
}

// Export writes b to w as a zstd stream holding a JSON header line followed
// by the JSON board.
func Export(w io.Writer, b Board) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("create encoder: %w", err)
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	h := Header{
		Version:    SnapshotVersion,
		Turn:       b.Turn,
		ExportedAt: time.Now().UTC(),
		Tasks:      len(b.Tasks),
		Teams:      len(b.Teams),
	}
	hb, err := json.Marshal(h)
	if err != nil {
		_ = enc.Close()
		return err
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		_ = enc.Close()
		return err
	}
	if err := json.NewEncoder(bw).Encode(b); err != nil {
		_ = enc.Close()
		return fmt.Errorf("encode board: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

// Import reads a board written by Export.
func Import(r io.Reader) (Header, Board, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return Header{}, Board{}, fmt.Errorf("create decoder: %w", err)
	}
	defer dec.Close()

	br := bufio.NewReader(dec)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return Header{}, Board{}, fmt.Errorf("read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return Header{}, Board{}, fmt.Errorf("decode header: %w", err)
	}
	if h.Version != SnapshotVersion {
		return h, Board{}, fmt.Errorf("unsupported snapshot version %d", h.Version)
	}

	var b Board
	if err := json.NewDecoder(br).Decode(&b); err != nil {
		return h, Board{}, fmt.Errorf("decode board: %w", err)
	}
	if b.Storage == nil {
		b.Storage = make(map[string]int)
	}
	if b.Members == nil {
		b.Members = make(map[string]map[string]int)
	}
	return h, b, nil
}

// ExportFile writes b to path, creating parent directories.
func ExportFile(path string, b Board) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if err := Export(f, b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// ImportFile reads a board exported to path.
func ImportFile(path string) (Header, Board, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, Board{}, err
	}
	defer func() { _ = f.Close() }()
	return Import(f)
}
