package log

import (
	"os"

	"github.com/tysonmote/gommap"
)

// index owns a segment's index file: sparse (offset, position) entries
// appended through the file handle, read back through a read-only memory
// mapping. The mapping covers the file as it was at the last remap; the
// segment rebuilds it at every index-flush point, so readers between
// flushes see a consistent prefix.
type index struct {
	file *os.File
	mmap gommap.MMap
	size uint64
}

// newIndex creates an index over the given file and maps its current
// contents.
func newIndex(file *os.File) (*index, error) {
	idx := &index{
		file: file,
	}

	if err := idx.remap(); err != nil {
		return nil, err
	}

	return idx, nil
}

// remap drops the current mapping and re-maps the file at its current
// size. A zero-length file maps to nothing; lookups then report an empty
// index.
func (i *index) remap() error {
	if i.mmap != nil {
		if err := i.mmap.UnsafeUnmap(); err != nil {
			return err
		}
		i.mmap = nil
	}

	fi, err := i.file.Stat()
	if err != nil {
		return err
	}

	i.size = uint64(fi.Size())

	if i.size == 0 {
		return nil
	}

	mmap, err := gommap.Map(
		i.file.Fd(),
		gommap.PROT_READ,
		gommap.MAP_SHARED,
	)
	if err != nil {
		return err
	}

	i.mmap = mmap
	return nil
}

// Write appends an entry for the record at the given offset and log-file
// position. The entry becomes visible to lookups at the next Flush.
func (i *index) Write(offset, pos uint64) error {
	_, err := i.file.Write(encodeIndexEntry(offset, pos))
	return err
}

// Flush forces written entries to stable storage and rebuilds the mapping
// to cover them.
func (i *index) Flush() error {
	if err := i.file.Sync(); err != nil {
		return err
	}
	return i.remap()
}

// Entries returns the number of mapped index entries.
func (i *index) Entries() int {
	return int(i.size / entWidth)
}

// entry decodes the nth mapped entry.
func (i *index) entry(n int) (offset, pos uint64) {
	start := uint64(n) * entWidth
	return decodeIndexEntry(i.mmap[start : start+entWidth])
}

// LastEntry returns the final mapped entry, reporting ok as false when the
// index is empty.
func (i *index) LastEntry() (offset, pos uint64, ok bool) {
	n := i.Entries()
	if n == 0 {
		return 0, 0, false
	}

	offset, pos = i.entry(n - 1)
	return offset, pos, true
}

// FindFloor returns the log-file position of the largest indexed offset
// that is at most target. Entries are sorted and fixed-size, so a binary
// search over the mapping finds it.
func (i *index) FindFloor(target uint64) (pos uint64, ok bool) {
	lo, hi := 0, i.Entries()-1

	for lo <= hi {
		mid := (lo + hi) / 2

		off, p := i.entry(mid)
		if off <= target {
			pos, ok = p, true
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}

	return pos, ok
}

// Name returns the index file's path.
func (i *index) Name() string {
	return i.file.Name()
}

// Close unmaps the index, syncs the file, and closes it.
func (i *index) Close() error {
	if i.mmap != nil {
		if err := i.mmap.UnsafeUnmap(); err != nil {
			return err
		}
		i.mmap = nil
	}

	if err := i.file.Sync(); err != nil {
		return err
	}
	return i.file.Close()
}
