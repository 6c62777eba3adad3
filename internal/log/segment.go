package log

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	api "github.com/Gibson-Gichuru/partlog/api/v1"
	"go.uber.org/multierr"
)

// segment is one (log file, index file) pair holding a contiguous offset
// range. The base offset names both files; every record in the log file
// has an offset of at least baseOffset, and nextOffset is the offset the
// next append will receive.
type segment struct {
	store      *store
	index      *index
	baseOffset uint64
	nextOffset uint64
	config     Config
}

// newSegment opens or creates the segment with the given base offset in
// dir, then recovers the next-offset watermark from the files found on
// disk.
func newSegment(dir string, baseOffset uint64, c Config) (*segment, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	s := &segment{
		baseOffset: baseOffset,
		config:     c,
	}

	logFile, err := os.OpenFile(
		filepath.Join(dir, fmt.Sprintf("%020d.log", baseOffset)),
		os.O_RDWR|os.O_CREATE|os.O_APPEND,
		0644,
	)
	if err != nil {
		return nil, err
	}

	if s.store, err = newStore(logFile); err != nil {
		return nil, err
	}

	indexFile, err := os.OpenFile(
		filepath.Join(dir, fmt.Sprintf("%020d.index", baseOffset)),
		os.O_RDWR|os.O_CREATE|os.O_APPEND,
		0644,
	)
	if err != nil {
		return nil, err
	}

	if s.index, err = newIndex(indexFile); err != nil {
		return nil, err
	}

	if err := s.recover(); err != nil {
		return nil, err
	}

	return s, nil
}

// recover restores nextOffset after a restart. It starts the walk at the
// last indexed position, reads record headers forward tracking the last
// fully present record, and truncates anything past that record so the
// next append lands on a clean boundary.
func (s *segment) recover() error {
	size := s.store.Size()

	if size == 0 {
		s.nextOffset = s.baseOffset
		return nil
	}

	var start uint64
	if _, pos, ok := s.index.LastEntry(); ok && pos < size {
		start = pos
	}

	last, end, found, err := s.scan(start)
	if err != nil {
		return err
	}

	if !found && start > 0 {
		// The record under the last index entry never made it to disk
		// whole. Rescan from the head so the records before it still
		// count toward the watermark.
		last, end, found, err = s.scan(0)
		if err != nil {
			return err
		}
	}

	if !found {
		s.nextOffset = s.baseOffset
		return s.store.Truncate(0)
	}

	if last < s.baseOffset {
		return api.ErrorCorruptLog{
			Path: s.store.Name(),
			Reason: fmt.Sprintf(
				"record offset %d below base offset %d", last, s.baseOffset,
			),
		}
	}

	s.nextOffset = last + 1

	if end < size {
		return s.store.Truncate(end)
	}
	return nil
}

// scan walks records forward from pos, returning the offset of the last
// complete record and the byte position just past it. A trailing partial
// record, header or payload, ends the walk.
func (s *segment) scan(pos uint64) (last, end uint64, found bool, err error) {
	size := s.store.Size()
	header := make([]byte, headerWidth)

	end = pos
	for end+headerWidth <= size {
		if _, err := s.store.ReadAt(header, int64(end)); err != nil {
			return 0, 0, false, err
		}

		off, length := decodeHeader(header)

		next := end + headerWidth + uint64(length)
		if next > size {
			break
		}

		last, found = off, true
		end = next
	}

	return last, end, found, nil
}

// Append writes the payload as the next record. When the log file has
// already reached the segment's size cap it writes nothing, flushes both
// files, refreshes the index mapping, and reports full so the caller can
// rotate. Full is a state, not a failure; err is reserved for I/O.
func (s *segment) Append(payload []byte) (offset uint64, full bool, err error) {
	pos := s.store.Size()

	if pos >= s.config.Segment.MaxSegmentBytes {
		if err := s.store.Flush(); err != nil {
			return 0, false, err
		}
		if err := s.index.Flush(); err != nil {
			return 0, false, err
		}
		return 0, true, nil
	}

	offset = s.nextOffset

	if _, err = s.store.Append(encodeRecord(offset, payload)); err != nil {
		return 0, false, err
	}

	if offset%indexInterval == 0 {
		if err = s.store.Flush(); err != nil {
			return 0, false, err
		}
		if err = s.index.Write(offset, pos); err != nil {
			return 0, false, err
		}
		if err = s.index.Flush(); err != nil {
			return 0, false, err
		}
	}

	s.nextOffset++

	return offset, false, nil
}

// Read returns the payload stored at the target offset. The index floor
// entry gives the nearest known starting position; from there the walk
// skips forward record by record. A miss is not an error: found is false
// when the offset was never written to this segment.
func (s *segment) Read(target uint64) (payload []byte, found bool, err error) {
	var pos uint64
	if p, ok := s.index.FindFloor(target); ok {
		pos = p
	}

	size := s.store.Size()
	if pos >= size {
		return nil, false, nil
	}

	header := make([]byte, headerWidth)

	for pos+headerWidth <= size {
		if _, err := s.store.ReadAt(header, int64(pos)); err != nil {
			return nil, false, err
		}

		off, length := decodeHeader(header)

		if off == target {
			payload = make([]byte, length)
			if length > 0 {
				if _, err := s.store.ReadAt(payload, int64(pos+headerWidth)); err != nil {
					return nil, false, err
				}
			}
			return payload, true, nil
		}

		if off > target {
			return nil, false, nil
		}

		pos += headerWidth + uint64(length)
	}

	return nil, false, nil
}

// Size returns the current size of the segment's log file.
func (s *segment) Size() uint64 {
	return s.store.Size()
}

// ModTime returns the log file's last modification time, used by retention
// sweeps to age segments.
func (s *segment) ModTime() (time.Time, error) {
	fi, err := os.Stat(s.store.Name())
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}

// Close flushes and closes the segment's index and store.
func (s *segment) Close() error {
	return multierr.Append(
		s.index.Close(),
		s.store.Close(),
	)
}

// Remove closes the segment and deletes both of its files.
func (s *segment) Remove() error {
	if err := s.Close(); err != nil {
		return err
	}
	return multierr.Append(
		os.Remove(s.index.Name()),
		os.Remove(s.store.Name()),
	)
}
