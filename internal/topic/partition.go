package topic

import (
	"fmt"
	"time"

	api "github.com/Gibson-Gichuru/partlog/api/v1"
	"github.com/Gibson-Gichuru/partlog/internal/log"
)

type partitionState int

const (
	stateActive partitionState = iota
	stateDeleted
)

// Partition is the unit of parallelism within a topic. It owns exactly
// one queue and a state: Active partitions serve appends and reads,
// Deleted ones reject both until cleanup reclaims them.
type Partition struct {
	ID    uint32
	queue *log.Queue

	state     partitionState
	deletedAt time.Time
}

func newPartition(id uint32, queue *log.Queue) *Partition {
	return &Partition{
		ID:    id,
		queue: queue,
		state: stateActive,
	}
}

func (p *Partition) deleted() bool {
	return p.state == stateDeleted
}

// delete tombstones the partition and closes its queue so file handles
// are released before the directory is eventually removed.
func (p *Partition) delete() error {
	if err := p.queue.Close(); err != nil {
		return err
	}

	p.state = stateDeleted
	p.deletedAt = time.Now()

	return nil
}

// Append writes the payload to the partition's queue.
func (p *Partition) Append(payload []byte) (uint64, error) {
	if p.deleted() {
		return 0, fmt.Errorf("partition %d: %w", p.ID, api.ErrPartitionDeleted)
	}
	return p.queue.Append(payload)
}

// Read returns the payload stored at the given offset.
func (p *Partition) Read(offset uint64) (payload []byte, found bool, err error) {
	if p.deleted() {
		return nil, false, fmt.Errorf("partition %d: %w", p.ID, api.ErrPartitionDeleted)
	}
	return p.queue.Read(offset)
}
