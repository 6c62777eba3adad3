package topic

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	api "github.com/Gibson-Gichuru/partlog/api/v1"
	"github.com/Gibson-Gichuru/partlog/internal/log"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Config struct {
	// SegmentSize is the soft cap, in bytes, on each segment's log file.
	SegmentSize uint64
	// NumPartitions fixes the partition id range [0, NumPartitions).
	NumPartitions uint32
	// BaseDir is the root under which per-partition directories are
	// created.
	BaseDir string
}

// Topic binds a name and a configuration to a set of partitions. Deleting
// a partition tombstones it in place; the directory and the map entry are
// reclaimed later by CleanupDeleted, so an in-flight operation can never
// race with the directory removal.
type Topic struct {
	mu         sync.Mutex
	name       string
	config     Config
	partitions map[uint32]*Partition
	logger     *zap.Logger
}

// New creates an in-memory topic with no partitions. Call InitPartitions
// to create the configured partition set.
func New(name string, config Config) *Topic {
	return &Topic{
		name:       name,
		config:     config,
		partitions: make(map[uint32]*Partition),
		logger:     zap.L().Named("topic"),
	}
}

// Name returns the topic's name.
func (t *Topic) Name() string {
	return t.name
}

// Config returns the topic's configuration.
func (t *Topic) Config() Config {
	return t.config
}

// PartitionCount returns the number of partitions currently held,
// tombstones included.
func (t *Topic) PartitionCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.partitions)
}

// InitPartitions creates every partition in the configured range.
func (t *Topic) InitPartitions() error {
	for id := uint32(0); id < t.config.NumPartitions; id++ {
		if err := t.CreatePartition(id); err != nil {
			return err
		}
	}
	return nil
}

// CreatePartition creates the partition with the given id, along with its
// directory and an empty queue.
func (t *Topic) CreatePartition(id uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.partitions[id]; ok {
		return fmt.Errorf("partition %d: %w", id, api.ErrAlreadyExists)
	}

	if id >= t.config.NumPartitions {
		return fmt.Errorf("partition %d: %w", id, api.ErrOutOfRange)
	}

	var c log.Config
	c.Segment.MaxSegmentBytes = t.config.SegmentSize

	queue, err := log.NewQueue(t.partitionDir(id), c)
	if err != nil {
		return err
	}

	t.partitions[id] = newPartition(id, queue)

	t.logger.Info(
		"created partition",
		zap.String("topic", t.name),
		zap.Uint32("partition", id),
	)

	return nil
}

// DeletePartition tombstones the partition with the given id. The queue
// is closed so file handles are released, but the directory stays on disk
// until CleanupDeleted reclaims it.
func (t *Topic) DeletePartition(id uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.deletePartition(id)
}

func (t *Topic) deletePartition(id uint32) error {
	p, ok := t.partitions[id]
	if !ok {
		return fmt.Errorf("partition %d: %w", id, api.ErrNotFound)
	}

	if err := p.delete(); err != nil {
		return err
	}

	t.logger.Info(
		"deleted partition",
		zap.String("topic", t.name),
		zap.Uint32("partition", id),
	)

	return nil
}

// DeleteAllPartitions tombstones every live partition without touching
// disk.
func (t *Topic) DeleteAllPartitions() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, p := range t.partitions {
		if p.deleted() {
			continue
		}
		if err := t.deletePartition(id); err != nil {
			return err
		}
	}
	return nil
}

// DeleteTopic tombstones every partition and removes every partition
// directory from disk.
func (t *Topic) DeleteTopic() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, p := range t.partitions {
		if !p.deleted() {
			if err := t.deletePartition(id); err != nil {
				return err
			}
		}

		if err := os.RemoveAll(t.partitionDir(id)); err != nil {
			return err
		}

		delete(t.partitions, id)
	}

	t.logger.Info("deleted topic", zap.String("topic", t.name))

	return nil
}

// CleanupDeleted reclaims tombstoned partitions whose deletion is older
// than maxAge: the partition directory is removed from disk and the map
// entry dropped. Callers drive this; there is no background sweeper.
func (t *Topic) CleanupDeleted(maxAge time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()

	for id, p := range t.partitions {
		if !p.deleted() || now.Sub(p.deletedAt) < maxAge {
			continue
		}

		if err := os.RemoveAll(t.partitionDir(id)); err != nil {
			return err
		}

		delete(t.partitions, id)

		t.logger.Info(
			"cleaned up deleted partition",
			zap.String("topic", t.name),
			zap.Uint32("partition", id),
		)
	}

	return nil
}

// CleanupOldSegments runs a retention sweep over every live partition,
// removing sealed segments past the size or age limits.
func (t *Topic) CleanupOldSegments(maxTotalBytes uint64, maxAge time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var err error
	for _, p := range t.partitions {
		if p.deleted() {
			continue
		}
		err = multierr.Append(
			err,
			p.queue.CleanupOldSegments(maxTotalBytes, maxAge),
		)
	}
	return err
}

// Append writes the payload to the given partition and returns the offset
// it was assigned.
func (t *Topic) Append(id uint32, payload []byte) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.partitions[id]
	if !ok {
		return 0, fmt.Errorf("partition %d: %w", id, api.ErrNotFound)
	}

	return p.Append(payload)
}

// Read returns the payload stored at the given offset of the given
// partition, reporting found as false when the offset holds no record.
func (t *Topic) Read(id uint32, offset uint64) (payload []byte, found bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.partitions[id]
	if !ok {
		return nil, false, fmt.Errorf("partition %d: %w", id, api.ErrNotFound)
	}

	return p.Read(offset)
}

// Close closes every live partition's queue.
func (t *Topic) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var err error
	for _, p := range t.partitions {
		if p.deleted() {
			continue
		}
		err = multierr.Append(err, p.queue.Close())
	}
	return err
}

// partitionDir returns the directory holding the partition's segments:
// <base_dir>/<topic>-<id>.
func (t *Topic) partitionDir(id uint32) string {
	return filepath.Join(
		t.config.BaseDir,
		fmt.Sprintf("%s-%d", t.name, id),
	)
}
