package broker

import (
	"sort"

	"github.com/Gibson-Gichuru/partlog/internal/topic"
)

// PartitionMetadata describes one partition's placement. This broker is
// single-replica, so the leader is always broker 0 and the replica and
// in-sync lists collapse to it.
type PartitionMetadata struct {
	ID       uint32
	Leader   uint32
	Replicas []uint32
	ISR      []uint32
}

// TopicMetadata is the describable view of a topic: its name, its
// configuration, and one entry per partition in the configured range.
type TopicMetadata struct {
	Name       string
	Partitions []PartitionMetadata
	Config     topic.Config
}

// ListTopics returns the names of every registered topic, sorted.
func (b *Broker) ListTopics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.topics))
	for name := range b.topics {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// DescribeTopic returns the metadata view of one topic.
func (b *Broker) DescribeTopic(name string) (TopicMetadata, error) {
	t, err := b.topic(name)
	if err != nil {
		return TopicMetadata{}, err
	}

	config := t.Config()

	md := TopicMetadata{
		Name:   t.Name(),
		Config: config,
	}

	for id := uint32(0); id < config.NumPartitions; id++ {
		md.Partitions = append(md.Partitions, PartitionMetadata{
			ID:       id,
			Leader:   0,
			Replicas: []uint32{0},
			ISR:      []uint32{0},
		})
	}

	return md, nil
}
