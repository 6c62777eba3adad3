package broker

import (
	"fmt"
	"sync"
	"time"

	api "github.com/Gibson-Gichuru/partlog/api/v1"
	"github.com/Gibson-Gichuru/partlog/internal/topic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Config struct {
	// BaseDir is the root directory for every topic's partition
	// directories.
	BaseDir string
	// SegmentSize is the soft cap applied to segments of topics created
	// through this broker. Defaults to DefaultSegmentSize.
	SegmentSize uint64
}

// DefaultSegmentSize caps segment log files at 64MB unless the broker is
// configured otherwise.
const DefaultSegmentSize = 64 * 1024 * 1024

// Broker is the process-scoped registry and router. It owns the topic map
// and the consumer-group offset map behind one lock with short critical
// sections; everything per-topic is delegated to the Topic.
type Broker struct {
	mu      sync.RWMutex
	config  Config
	topics  map[string]*topic.Topic
	offsets map[string]map[string]uint32
	logger  *zap.Logger
}

// New creates a broker with no topics.
func New(config Config) *Broker {
	if config.SegmentSize == 0 {
		config.SegmentSize = DefaultSegmentSize
	}

	return &Broker{
		config:  config,
		topics:  make(map[string]*topic.Topic),
		offsets: make(map[string]map[string]uint32),
		logger:  zap.L().Named("broker"),
	}
}

// CreateTopic allocates a topic with the given partition count and the
// broker's default segment size, initializes its partitions, and
// registers it.
func (b *Broker) CreateTopic(name string, numPartitions uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.topics[name]; ok {
		return fmt.Errorf("topic %q: %w", name, api.ErrAlreadyExists)
	}

	if numPartitions == 0 {
		return fmt.Errorf("topic %q needs at least one partition: %w", name, api.ErrOutOfRange)
	}

	t := topic.New(name, topic.Config{
		SegmentSize:   b.config.SegmentSize,
		NumPartitions: numPartitions,
		BaseDir:       b.config.BaseDir,
	})

	if err := t.InitPartitions(); err != nil {
		return err
	}

	b.topics[name] = t

	b.logger.Info(
		"created topic",
		zap.String("topic", name),
		zap.Uint32("partitions", numPartitions),
	)

	return nil
}

// DeleteTopic removes the topic from the registry and its partition
// directories from disk.
func (b *Broker) DeleteTopic(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[name]
	if !ok {
		return fmt.Errorf("topic %q: %w", name, api.ErrNotFound)
	}

	if err := t.DeleteTopic(); err != nil {
		return err
	}

	delete(b.topics, name)

	return nil
}

// SendMessage appends the payload to the topic, picking the partition as
// the payload length modulo the partition count. The rule is odd next to
// key hashing but it is deterministic and testable, and it is the
// behavior consumers of this broker rely on.
func (b *Broker) SendMessage(topicName string, payload []byte) (uint64, error) {
	t, err := b.topic(topicName)
	if err != nil {
		return 0, err
	}

	partition := uint32(len(payload)) % t.Config().NumPartitions

	return t.Append(partition, payload)
}

// FetchMessage returns the payload stored at the given (partition,
// offset), reporting found as false when the offset holds no record.
func (b *Broker) FetchMessage(topicName string, partition uint32, offset uint64) (payload []byte, found bool, err error) {
	t, err := b.topic(topicName)
	if err != nil {
		return nil, false, err
	}

	return t.Read(partition, offset)
}

// CommitOffset records a consumer group's position for one (topic,
// partition). The map is opaque bookkeeping: no monotonicity check, no
// persistence.
func (b *Broker) CommitOffset(group, topicName string, partition uint32, offset uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	groupOffsets, ok := b.offsets[group]
	if !ok {
		groupOffsets = make(map[string]uint32)
		b.offsets[group] = groupOffsets
	}

	groupOffsets[offsetKey(topicName, partition)] = offset
}

// GetOffset returns the last committed position for a consumer group on
// one (topic, partition), reporting ok as false when the group never
// committed there.
func (b *Broker) GetOffset(group, topicName string, partition uint32) (offset uint32, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	groupOffsets, ok := b.offsets[group]
	if !ok {
		return 0, false
	}

	offset, ok = groupOffsets[offsetKey(topicName, partition)]
	return offset, ok
}

// CleanupDeletedPartitions reclaims tombstoned partitions older than
// maxAge across every registered topic.
func (b *Broker) CleanupDeletedPartitions(maxAge time.Duration) error {
	b.mu.RLock()
	topics := make([]*topic.Topic, 0, len(b.topics))
	for _, t := range b.topics {
		topics = append(topics, t)
	}
	b.mu.RUnlock()

	var err error
	for _, t := range topics {
		err = multierr.Append(err, t.CleanupDeleted(maxAge))
	}
	return err
}

// Close closes every registered topic.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	for _, t := range b.topics {
		err = multierr.Append(err, t.Close())
	}
	return err
}

// topic looks a topic up under the registry lock.
func (b *Broker) topic(name string) (*topic.Topic, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	t, ok := b.topics[name]
	if !ok {
		return nil, fmt.Errorf("topic %q: %w", name, api.ErrNotFound)
	}
	return t, nil
}

// offsetKey builds the inner key of the consumer-offset map.
func offsetKey(topicName string, partition uint32) string {
	return fmt.Sprintf("%s-%d", topicName, partition)
}
