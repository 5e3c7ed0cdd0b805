// Package fileio grows and shrinks byte ranges inside an already-open
// file without rewriting the untouched remainder through user space.
//
// The fast path memory-maps the file and shifts the trailing region with
// a single overlapping copy. When mapping is unavailable (empty file,
// unsupported platform or filesystem) the same move is done with chunked
// positioned reads and writes, walking from the correct end of the file
// so unread data is never clobbered.
package fileio

import (
	"errors"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// fallbackChunk is the buffer size used by the non-mmap move.
const fallbackChunk = 64 * 1024

var errMmapUnavailable = errors.New("fileio: cannot memory-map file")

// mapMove is swapped out in tests to force the fallback path.
var mapMove = mmapMove

// InsertBytes opens a hole of size bytes at offset, shifting everything
// from offset onward toward the end of the file. The contents of the
// hole are unspecified; callers are expected to overwrite it. The file
// must be open for reading and writing.
func InsertBytes(f *os.File, size, offset int64) error {
	if size <= 0 {
		return fmt.Errorf("fileio: insert size %d must be positive", size)
	}
	fileSize, err := checkRange(f, offset)
	if err != nil {
		return err
	}
	if err := f.Truncate(fileSize + size); err != nil {
		return fmt.Errorf("fileio: grow file: %w", err)
	}
	return move(f, offset+size, offset, fileSize-offset)
}

// DeleteBytes removes size bytes at offset, shifting everything after
// the deleted range toward the start of the file and truncating the
// file by size bytes.
func DeleteBytes(f *os.File, size, offset int64) error {
	if size <= 0 {
		return fmt.Errorf("fileio: delete size %d must be positive", size)
	}
	fileSize, err := checkRange(f, offset)
	if err != nil {
		return err
	}
	if offset+size > fileSize {
		return fmt.Errorf("fileio: range %d+%d exceeds file size %d", offset, size, fileSize)
	}
	if err := move(f, offset, offset+size, fileSize-offset-size); err != nil {
		return err
	}
	if err := f.Truncate(fileSize - size); err != nil {
		return fmt.Errorf("fileio: shrink file: %w", err)
	}
	return nil
}

func checkRange(f *os.File, offset int64) (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if offset < 0 || offset > fi.Size() {
		return 0, fmt.Errorf("fileio: offset %d outside file of size %d", offset, fi.Size())
	}
	return fi.Size(), nil
}

// move copies count bytes from src to dest within f. Regions may overlap.
func move(f *os.File, dest, src, count int64) error {
	if count == 0 {
		return nil
	}
	if err := f.Sync(); err != nil {
		return err
	}
	err := mapMove(f, dest, src, count)
	if errors.Is(err, errMmapUnavailable) {
		return fallbackMove(f, dest, src, count)
	}
	return err
}

func mmapMove(f *os.File, dest, src, count int64) error {
	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		return fmt.Errorf("%w: %v", errMmapUnavailable, err)
	}
	defer m.Unmap()
	// copy has memmove semantics, overlap is fine.
	copy(m[dest:dest+count], m[src:src+count])
	return m.Flush()
}

// fallbackMove shifts the region with positioned I/O. An advisory lock
// is taken best-effort: not every platform or filesystem supports it,
// so failing to acquire is tolerated, but failing to release a lock we
// did acquire indicates a programming error and is reported.
func fallbackMove(f *os.File, dest, src, count int64) (err error) {
	locked := lockFile(f) == nil
	defer func() {
		if !locked {
			return
		}
		if uerr := unlockFile(f); uerr != nil && err == nil {
			err = fmt.Errorf("fileio: release advisory lock: %w", uerr)
		}
	}()

	buf := make([]byte, fallbackChunk)
	if dest > src {
		// Growing: walk backwards from the tail so the not-yet-copied
		// region is never overwritten.
		for remaining := count; remaining > 0; {
			n := int64(len(buf))
			if n > remaining {
				n = remaining
			}
			remaining -= n
			if _, err := f.ReadAt(buf[:n], src+remaining); err != nil {
				return err
			}
			if _, err := f.WriteAt(buf[:n], dest+remaining); err != nil {
				return err
			}
		}
		return nil
	}
	// Shrinking: walk forwards.
	for done := int64(0); done < count; {
		n := int64(len(buf))
		if n > count-done {
			n = count - done
		}
		if _, err := f.ReadAt(buf[:n], src+done); err != nil {
			return err
		}
		if _, err := f.WriteAt(buf[:n], dest+done); err != nil {
			return err
		}
		done += n
	}
	return nil
}
