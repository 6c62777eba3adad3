package broker

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	api "github.com/Gibson-Gichuru/partlog/api/v1"
	"github.com/stretchr/testify/require"
)

func testBroker(t *testing.T) (*Broker, string) {
	t.Helper()

	dir := t.TempDir()
	b := New(Config{BaseDir: dir})

	return b, dir
}

// TestBrokerSendFetch walks the basic produce/consume path: a payload of
// length 5 routes to partition 5 mod 3 = 2, lands at offset 0, and reads
// back from there and nowhere else.
func TestBrokerSendFetch(t *testing.T) {
	b, _ := testBroker(t)
	defer b.Close()

	require.NoError(t, b.CreateTopic("events", 3))

	payload := []byte{1, 2, 3, 4, 5}

	off, err := b.SendMessage("events", payload)
	require.NoError(t, err)
	require.Equal(t, uint64(0), off)

	got, found, err := b.FetchMessage("events", 2, 0)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, payload, got)

	_, found, err = b.FetchMessage("events", 0, 0)
	require.NoError(t, err)
	require.False(t, found)

	_, err = b.SendMessage("unknown", payload)
	require.ErrorIs(t, err, api.ErrNotFound)
}

// TestBrokerRouting verifies the payload-length routing rule across
// several lengths.
func TestBrokerRouting(t *testing.T) {
	b, _ := testBroker(t)
	defer b.Close()

	const partitions = 4

	require.NoError(t, b.CreateTopic("events", partitions))

	for length := 0; length < 9; length++ {
		payload := make([]byte, length)
		for i := range payload {
			payload[i] = byte(length)
		}

		_, err := b.SendMessage("events", payload)
		require.NoError(t, err)

		want := uint32(length % partitions)

		got, found, err := b.FetchMessage("events", want, latestOffset(t, b, want))
		require.NoError(t, err)
		require.True(t, found)
		require.Len(t, got, length)
	}
}

// latestOffset returns the offset of the most recent record in the
// partition by probing forward from 0.
func latestOffset(t *testing.T, b *Broker, partition uint32) uint64 {
	t.Helper()

	var last uint64
	for off := uint64(0); ; off++ {
		_, found, err := b.FetchMessage("events", partition, off)
		require.NoError(t, err)
		if !found {
			return last
		}
		last = off
	}
}

// TestBrokerCreateTopicValidation covers duplicate names and the empty
// partition range.
func TestBrokerCreateTopicValidation(t *testing.T) {
	b, _ := testBroker(t)
	defer b.Close()

	require.NoError(t, b.CreateTopic("events", 3))

	err := b.CreateTopic("events", 3)
	require.ErrorIs(t, err, api.ErrAlreadyExists)

	err = b.CreateTopic("empty", 0)
	require.ErrorIs(t, err, api.ErrOutOfRange)
}

// TestBrokerConsumerOffsets exercises the group-offset map: committed
// positions read back per (group, topic, partition) and everything else
// reports nothing.
func TestBrokerConsumerOffsets(t *testing.T) {
	b, _ := testBroker(t)
	defer b.Close()

	b.CommitOffset("g1", "events", 0, 42)

	off, ok := b.GetOffset("g1", "events", 0)
	require.True(t, ok)
	require.Equal(t, uint32(42), off)

	_, ok = b.GetOffset("g2", "events", 0)
	require.False(t, ok)

	_, ok = b.GetOffset("g1", "events", 1)
	require.False(t, ok)

	b.CommitOffset("g1", "events", 0, 43)
	off, ok = b.GetOffset("g1", "events", 0)
	require.True(t, ok)
	require.Equal(t, uint32(43), off)
}

// TestBrokerMetadata covers the topic listing and the describe view.
func TestBrokerMetadata(t *testing.T) {
	b, _ := testBroker(t)
	defer b.Close()

	require.NoError(t, b.CreateTopic("events", 3))
	require.NoError(t, b.CreateTopic("audit", 1))

	require.Equal(t, []string{"audit", "events"}, b.ListTopics())

	md, err := b.DescribeTopic("events")
	require.NoError(t, err)
	require.Equal(t, "events", md.Name)
	require.Len(t, md.Partitions, 3)

	for i, p := range md.Partitions {
		require.Equal(t, uint32(i), p.ID)
		require.Equal(t, uint32(0), p.Leader)
		require.Equal(t, []uint32{0}, p.Replicas)
		require.Equal(t, []uint32{0}, p.ISR)
	}

	_, err = b.DescribeTopic("unknown")
	require.ErrorIs(t, err, api.ErrNotFound)
}

// TestBrokerDeleteTopic verifies that deleting a topic unregisters it and
// removes its partition directories from disk.
func TestBrokerDeleteTopic(t *testing.T) {
	b, dir := testBroker(t)
	defer b.Close()

	require.NoError(t, b.CreateTopic("events", 3))

	_, err := b.SendMessage("events", []byte("hello"))
	require.NoError(t, err)

	require.NoError(t, b.DeleteTopic("events"))
	require.Empty(t, b.ListTopics())

	for id := 0; id < 3; id++ {
		_, err := os.Stat(filepath.Join(dir, fmt.Sprintf("events-%d", id)))
		require.True(t, os.IsNotExist(err))
	}

	err = b.DeleteTopic("events")
	require.ErrorIs(t, err, api.ErrNotFound)

	// The name is free again.
	require.NoError(t, b.CreateTopic("events", 1))
}
