// Package writeback applies byte-range edits to script sources and writes
// the result back to disk.
package writeback

import (
	"fmt"
	"path/filepath"
	"sort"

	billy "github.com/go-git/go-billy/v5"
)

// Splice replaces src[Start:End] with Content.
type Splice struct {
	Start   uint32
	End     uint32
	Content []byte
}

// Apply returns src with every splice applied. Splices must not overlap;
// they may be given in any order. src is not modified.
func Apply(src []byte, splices []Splice) ([]byte, error) {
	if len(splices) == 0 {
		out := make([]byte, len(src))
		copy(out, src)
		return out, nil
	}

	sorted := make([]Splice, len(splices))
	copy(sorted, splices)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	size := len(src)
	for i, s := range sorted {
		if int(s.Start) > len(src) || int(s.End) > len(src) || s.Start > s.End {
			return nil, fmt.Errorf("invalid byte range [%d:%d] for source of length %d", s.Start, s.End, len(src))
		}
		if i > 0 && s.Start < sorted[i-1].End {
			return nil, fmt.Errorf("overlapping byte ranges [%d:%d] and [%d:%d]",
				sorted[i-1].Start, sorted[i-1].End, s.Start, s.End)
		}
		size += len(s.Content) - int(s.End-s.Start)
	}

	// result = prefix + content + gap + content + ... + suffix
	result := make([]byte, 0, size)
	var cursor uint32
	for _, s := range sorted {
		result = append(result, src[cursor:s.Start]...)
		result = append(result, s.Content...)
		cursor = s.End
	}
	result = append(result, src[cursor:]...)
	return result, nil
}

// WriteFile replaces path with content. The write is atomic: content goes to
// a temp file in the same directory first, then is renamed over path.
func WriteFile(fsys billy.Filesystem, path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := fsys.TempFile(dir, ".alchemy-write-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = fsys.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = fsys.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("close temp: %w", err)
	}

	// Preserve original file permissions
	if info, err := fsys.Stat(path); err == nil {
		if ch, ok := fsys.(billy.Change); ok {
			_ = ch.Chmod(tmpName, info.Mode()) // best-effort permission sync
		}
	}

	if err := fsys.Rename(tmpName, path); err != nil {
		_ = fsys.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("rename temp to %s: %w", path, err)
	}
	return nil
}
