package log

import (
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	api "github.com/Gibson-Gichuru/partlog/api/v1"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Queue is one partition's full durable history: an ordered run of
// segments whose base offsets chain together, with the last segment
// receiving all new appends. One mutex guards the segment list, the
// active segment, and the read hint; per-partition throughput is bounded
// by the disk, so the coarse lock is not the bottleneck.
type Queue struct {
	mu     sync.Mutex
	Dir    string
	Config Config

	segments []*segment
	active   *segment
	readHint int

	logger *zap.Logger
}

// NewQueue opens the queue stored in dir, loading every segment found
// there and creating the initial one if the directory is empty. If
// Config.Segment.MaxSegmentBytes is zero it defaults to 1024.
func NewQueue(dir string, c Config) (*Queue, error) {
	if c.Segment.MaxSegmentBytes == 0 {
		c.Segment.MaxSegmentBytes = 1024
	}

	q := &Queue{
		Dir:    dir,
		Config: c,
		logger: zap.L().Named("queue"),
	}

	return q, q.setup()
}

// setup lists the directory, opens a segment for every .log file found,
// sorted by base offset, and falls back to a fresh segment at the initial
// offset when none exist. Files that don't follow the naming convention
// are ignored.
func (q *Queue) setup() error {
	if err := os.MkdirAll(q.Dir, 0755); err != nil {
		return err
	}

	files, err := os.ReadDir(q.Dir)
	if err != nil {
		return err
	}

	var baseOffsets []uint64

	for _, file := range files {
		if !strings.HasSuffix(file.Name(), ".log") {
			continue
		}

		offStr := strings.TrimSuffix(
			file.Name(),
			path.Ext(file.Name()),
		)

		off, err := strconv.ParseUint(offStr, 10, 64)
		if err != nil {
			continue
		}

		baseOffsets = append(baseOffsets, off)
	}

	sort.Slice(baseOffsets, func(i, j int) bool {
		return baseOffsets[i] < baseOffsets[j]
	})

	for _, off := range baseOffsets {
		if err := q.newSegment(off); err != nil {
			return err
		}
	}

	if q.segments == nil {
		if err := q.newSegment(
			q.Config.Segment.InitialOffset,
		); err != nil {
			return err
		}
	}

	return nil
}

// newSegment opens the segment at the given base offset, appends it to
// the queue, and makes it the active segment.
func (q *Queue) newSegment(off uint64) error {
	s, err := newSegment(q.Dir, off, q.Config)
	if err != nil {
		return err
	}

	q.segments = append(q.segments, s)
	q.active = s

	return nil
}

// Append writes the payload to the active segment and returns its offset.
// When the active segment reports full, the queue seals it, opens a new
// segment at the sealed segment's next offset so offsets stay contiguous
// across the rotation, and retries exactly once. A payload that cannot
// fit in any segment is a configuration error, not a reason to rotate
// again.
func (q *Queue) Append(payload []byte) (uint64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if uint64(len(payload)) > q.Config.Segment.MaxSegmentBytes {
		return 0, api.ErrorPayloadTooLarge{
			Size:            len(payload),
			MaxSegmentBytes: q.Config.Segment.MaxSegmentBytes,
		}
	}

	off, full, err := q.active.Append(payload)
	if err != nil {
		return 0, err
	}
	if !full {
		return off, nil
	}

	newBase := q.active.nextOffset

	if err := q.newSegment(newBase); err != nil {
		return 0, err
	}

	q.logger.Info(
		"rotated segment",
		zap.String("dir", q.Dir),
		zap.Uint64("base_offset", newBase),
	)

	off, full, err = q.active.Append(payload)
	if err != nil {
		return 0, err
	}
	if full {
		return 0, api.ErrorPayloadTooLarge{
			Size:            len(payload),
			MaxSegmentBytes: q.Config.Segment.MaxSegmentBytes,
		}
	}

	return off, nil
}

// Read returns the payload stored at the given offset, reporting found as
// false for offsets past the watermark, below the oldest segment, or
// skipped by truncation. The read hint remembers the segment that served
// the last read, which makes sequential consumption skip the segment
// lookup; reads behind the hint fall back to the sorted lookup.
func (q *Queue) Read(offset uint64) (payload []byte, found bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if offset >= q.active.nextOffset {
		return nil, false, nil
	}
	if offset < q.segments[0].baseOffset {
		return nil, false, nil
	}

	if q.readHint == 0 || offset < q.segments[q.readHint].baseOffset {
		q.readHint = q.floorSegment(offset)
	}

	for i := q.readHint; i < len(q.segments); i++ {
		payload, found, err = q.segments[i].Read(offset)
		if err != nil {
			return nil, false, err
		}
		if found {
			q.readHint = i
			return payload, true, nil
		}
	}

	return nil, false, nil
}

// floorSegment returns the index of the segment with the largest base
// offset at most off. Base offsets are kept sorted, so the slice itself
// is the base-offset lookup table.
func (q *Queue) floorSegment(off uint64) int {
	i := sort.Search(len(q.segments), func(i int) bool {
		return q.segments[i].baseOffset > off
	}) - 1

	if i < 0 {
		i = 0
	}
	return i
}

// LowestOffset returns the base offset of the oldest segment.
func (q *Queue) LowestOffset() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.segments[0].baseOffset
}

// HighestOffset returns the offset of the newest record, or 0 when the
// queue is empty.
func (q *Queue) HighestOffset() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	off := q.active.nextOffset
	if off == 0 {
		return 0
	}
	return off - 1
}

// NextOffset returns the offset the next append will receive.
func (q *Queue) NextOffset() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.active.nextOffset
}

// Truncate removes every sealed segment whose records all have offsets
// below lowest. The active segment is never removed. Reads of truncated
// offsets report not found.
func (q *Queue) Truncate(lowest uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var segments []*segment

	for _, s := range q.segments {
		if s != q.active && s.nextOffset <= lowest+1 {
			if err := s.Remove(); err != nil {
				return err
			}
			continue
		}
		segments = append(segments, s)
	}

	q.segments = segments
	q.readHint = 0

	return nil
}

// CleanupOldSegments is a caller-driven retention sweep. Walking oldest
// first, it removes sealed segments while the queue's total size exceeds
// maxTotalBytes or the segment's last modification is older than maxAge.
// The active segment always survives.
func (q *Queue) CleanupOldSegments(maxTotalBytes uint64, maxAge time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var total uint64
	for _, s := range q.segments {
		total += s.Size()
	}

	now := time.Now()
	var segments []*segment
	removing := true

	for _, s := range q.segments {
		if removing && s != q.active {
			modTime, err := s.ModTime()
			if err != nil {
				return err
			}

			if total > maxTotalBytes || now.Sub(modTime) > maxAge {
				size := s.Size()
				if err := s.Remove(); err != nil {
					return err
				}
				total -= size

				q.logger.Info(
					"removed old segment",
					zap.String("dir", q.Dir),
					zap.Uint64("base_offset", s.baseOffset),
				)
				continue
			}
		}

		// Segments age in base-offset order; once one survives, every
		// newer one does too.
		removing = false
		segments = append(segments, s)
	}

	q.segments = segments
	q.readHint = 0

	return nil
}

// Close closes every segment in the queue.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var err error
	for _, s := range q.segments {
		err = multierr.Append(err, s.Close())
	}
	return err
}

// Remove closes the queue and deletes its directory from disk.
func (q *Queue) Remove() error {
	if err := q.Close(); err != nil {
		return err
	}
	return os.RemoveAll(q.Dir)
}
