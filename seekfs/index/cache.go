package index

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// ErrCacheFormat marks an unreadable or wrong-version cache file. The
// caller treats it as a cache miss and rebuilds; it is never fatal.
var ErrCacheFormat = errors.New("index: unusable cache file")

// Compact cache layout: an 8-byte header (magic, version, encoding tag,
// reserved) followed by a varint-encoded payload holding, per entry,
// only the normalized path, size, modified time, and a flags byte.
// Names and lowercase keys are derived on load, not stored.
var cacheMagic = [4]byte{'S', 'K', 'F', 'S'}

const (
	cacheVersion     = 2
	cacheEncodingVar = 1
	cacheHeaderSize  = 8

	flagDir    = 1 << 0
	flagHidden = 1 << 1
)

// legacyCache is the verbose pre-compact format: a gob-encoded entry
// slice with every derived field materialized. Still readable for
// migration; rewritten compact after a successful load.
type legacyCache struct {
	Version uint32
	Entries []legacyEntry
}

type legacyEntry struct {
	Name       string
	NameLower  string
	Path       string
	PathLower  string
	Size       uint64
	ModifiedMS uint64
	IsDir      bool
	IsHidden   bool
}

// SaveCache atomically persists the entry set to path: the payload is
// written to a temporary sibling first, then renamed over the
// destination, so a crash mid-write cannot corrupt the previous cache.
func SaveCache(path string, entries []Entry) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("index: create cache dir: %w", err)
		}
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("index: create cache temp: %w", err)
	}

	w := bufio.NewWriterSize(f, 1<<20)
	if err := encodeCompact(w, entries); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("index: flush cache: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("index: close cache temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("index: publish cache: %w", err)
	}
	return nil
}

// LoadCache reads a cache file in either the compact or the legacy
// format. Any decode failure or version mismatch is reported as
// ErrCacheFormat. A successfully read legacy file is opportunistically
// rewritten in the compact format.
func LoadCache(path string) ([]Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if len(raw) >= len(cacheMagic) && bytes.Equal(raw[:len(cacheMagic)], cacheMagic[:]) {
		return decodeCompact(raw)
	}

	entries, err := decodeLegacy(raw)
	if err != nil {
		return nil, err
	}
	if err := SaveCache(path, entries); err != nil {
		slog.Debug("legacy cache migration rewrite failed", "path", path, "error", err)
	}
	return entries, nil
}

func encodeCompact(w *bufio.Writer, entries []Entry) error {
	var header [cacheHeaderSize]byte
	copy(header[:4], cacheMagic[:])
	binary.LittleEndian.PutUint16(header[4:6], cacheVersion)
	header[6] = cacheEncodingVar
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("index: write cache header: %w", err)
	}

	var scratch [binary.MaxVarintLen64]byte
	putUvarint := func(v uint64) error {
		n := binary.PutUvarint(scratch[:], v)
		_, err := w.Write(scratch[:n])
		return err
	}

	if err := putUvarint(uint64(len(entries))); err != nil {
		return fmt.Errorf("index: write cache count: %w", err)
	}
	for i := range entries {
		e := &entries[i]
		if err := putUvarint(uint64(len(e.Path))); err != nil {
			return err
		}
		if _, err := w.WriteString(e.Path); err != nil {
			return err
		}
		if err := putUvarint(e.Size); err != nil {
			return err
		}
		if err := putUvarint(e.ModifiedMS); err != nil {
			return err
		}
		var flags byte
		if e.IsDir {
			flags |= flagDir
		}
		if e.IsHidden {
			flags |= flagHidden
		}
		if err := w.WriteByte(flags); err != nil {
			return err
		}
	}
	return nil
}

func decodeCompact(raw []byte) ([]Entry, error) {
	if len(raw) < cacheHeaderSize {
		return nil, fmt.Errorf("%w: truncated header", ErrCacheFormat)
	}
	if v := binary.LittleEndian.Uint16(raw[4:6]); v != cacheVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrCacheFormat, v, cacheVersion)
	}
	if raw[6] != cacheEncodingVar {
		return nil, fmt.Errorf("%w: unknown encoding tag %d", ErrCacheFormat, raw[6])
	}

	r := bytes.NewReader(raw[cacheHeaderSize:])
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("%w: entry count: %v", ErrCacheFormat, err)
	}
	if count > uint64(len(raw)) {
		// A path takes at least one payload byte; anything bigger is lies.
		return nil, fmt.Errorf("%w: implausible entry count %d", ErrCacheFormat, count)
	}

	entries := make([]Entry, 0, count)
	pathBuf := make([]byte, 0, 256)
	for i := uint64(0); i < count; i++ {
		pathLen, err := binary.ReadUvarint(r)
		if err != nil || pathLen > uint64(r.Len()) {
			return nil, fmt.Errorf("%w: entry %d path length", ErrCacheFormat, i)
		}
		if uint64(cap(pathBuf)) < pathLen {
			pathBuf = make([]byte, pathLen)
		}
		pathBuf = pathBuf[:pathLen]
		if _, err := io.ReadFull(r, pathBuf); err != nil {
			return nil, fmt.Errorf("%w: entry %d path: %v", ErrCacheFormat, i, err)
		}
		size, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d size", ErrCacheFormat, i)
		}
		modified, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d modified time", ErrCacheFormat, i)
		}
		flags, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d flags", ErrCacheFormat, i)
		}

		e := Entry{
			Size:       size,
			ModifiedMS: modified,
			IsDir:      flags&flagDir != 0,
			IsHidden:   flags&flagHidden != 0,
			Drive:      DriveOf(string(pathBuf)),
		}
		e.SetPath(string(pathBuf))
		e.SetName(BaseName(e.Path))
		entries = append(entries, e)
	}
	return entries, nil
}

func decodeLegacy(raw []byte) ([]Entry, error) {
	var legacy legacyCache
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&legacy); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheFormat, err)
	}
	if legacy.Version != 1 {
		return nil, fmt.Errorf("%w: legacy version %d", ErrCacheFormat, legacy.Version)
	}
	entries := make([]Entry, 0, len(legacy.Entries))
	for _, le := range legacy.Entries {
		e := Entry{
			Size:       le.Size,
			ModifiedMS: le.ModifiedMS,
			IsDir:      le.IsDir,
			IsHidden:   le.IsHidden,
			Drive:      DriveOf(le.Path),
		}
		// Lowercase keys are recomputed, not trusted from disk.
		e.SetPath(le.Path)
		e.SetName(le.Name)
		entries = append(entries, e)
	}
	return entries, nil
}

// EncodeLegacy writes the verbose pre-compact format. Kept for
// migration tests and for downgrading.
func EncodeLegacy(w io.Writer, entries []Entry) error {
	legacy := legacyCache{Version: 1, Entries: make([]legacyEntry, len(entries))}
	for i := range entries {
		e := &entries[i]
		legacy.Entries[i] = legacyEntry{
			Name:       e.Name,
			NameLower:  e.NameLower,
			Path:       e.Path,
			PathLower:  e.PathLower,
			Size:       e.Size,
			ModifiedMS: e.ModifiedMS,
			IsDir:      e.IsDir,
			IsHidden:   e.IsHidden,
		}
	}
	return gob.NewEncoder(w).Encode(&legacy)
}
