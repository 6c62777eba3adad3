package topic

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	api "github.com/Gibson-Gichuru/partlog/api/v1"
	"github.com/stretchr/testify/require"
)

func testTopic(t *testing.T, baseDir string) *Topic {
	t.Helper()

	return New("orders", Config{
		SegmentSize:   1024,
		NumPartitions: 3,
		BaseDir:       baseDir,
	})
}

// TestTopicLifecycle exercises partition creation, appends and reads,
// tombstoned deletion, and cleanup.
func TestTopicLifecycle(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, tp *Topic, dir string){
		"init creates every partition directory": testInitPartitions,
		"create validates id and uniqueness":     testCreateValidation,
		"append and read route by partition":     testAppendReadPartition,
		"delete tombstones the partition":        testDeletePartition,
		"cleanup reclaims tombstones":            testCleanupDeleted,
		"delete topic removes directories":       testDeleteTopic,
	} {
		t.Run(scenario, func(t *testing.T) {
			dir := t.TempDir()

			tp := testTopic(t, dir)
			require.NoError(t, tp.InitPartitions())
			defer tp.Close()

			fn(t, tp, dir)
		})
	}
}

func testInitPartitions(t *testing.T, tp *Topic, dir string) {
	require.Equal(t, 3, tp.PartitionCount())

	for id := 0; id < 3; id++ {
		fi, err := os.Stat(filepath.Join(dir, fmt.Sprintf("orders-%d", id)))
		require.NoError(t, err)
		require.True(t, fi.IsDir())
	}
}

func testCreateValidation(t *testing.T, tp *Topic, dir string) {
	err := tp.CreatePartition(0)
	require.ErrorIs(t, err, api.ErrAlreadyExists)

	err = tp.CreatePartition(3)
	require.ErrorIs(t, err, api.ErrOutOfRange)
}

func testAppendReadPartition(t *testing.T, tp *Topic, dir string) {
	want := []byte("hello world")

	off, err := tp.Append(1, want)
	require.NoError(t, err)
	require.Equal(t, uint64(0), off)

	got, found, err := tp.Read(1, 0)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, want, got)

	// Other partitions are untouched.
	_, found, err = tp.Read(0, 0)
	require.NoError(t, err)
	require.False(t, found)

	_, _, err = tp.Read(9, 0)
	require.ErrorIs(t, err, api.ErrNotFound)
}

func testDeletePartition(t *testing.T, tp *Topic, dir string) {
	_, err := tp.Append(1, []byte("hello world"))
	require.NoError(t, err)

	require.NoError(t, tp.DeletePartition(1))

	_, err = tp.Append(1, []byte("rejected"))
	require.ErrorIs(t, err, api.ErrPartitionDeleted)

	_, _, err = tp.Read(1, 0)
	require.ErrorIs(t, err, api.ErrPartitionDeleted)

	// Tombstoned, not reclaimed: the directory survives until cleanup.
	_, err = os.Stat(filepath.Join(dir, "orders-1"))
	require.NoError(t, err)

	err = tp.DeletePartition(9)
	require.ErrorIs(t, err, api.ErrNotFound)
}

func testCleanupDeleted(t *testing.T, tp *Topic, dir string) {
	require.NoError(t, tp.DeletePartition(1))

	// Too young to reclaim.
	require.NoError(t, tp.CleanupDeleted(time.Hour))
	require.Equal(t, 3, tp.PartitionCount())

	require.NoError(t, tp.CleanupDeleted(0))
	require.Equal(t, 2, tp.PartitionCount())

	_, err := os.Stat(filepath.Join(dir, "orders-1"))
	require.True(t, os.IsNotExist(err))

	// The id is free again after cleanup.
	require.NoError(t, tp.CreatePartition(1))
	require.Equal(t, 3, tp.PartitionCount())
}

func testDeleteTopic(t *testing.T, tp *Topic, dir string) {
	_, err := tp.Append(0, []byte("hello world"))
	require.NoError(t, err)

	require.NoError(t, tp.DeleteTopic())
	require.Equal(t, 0, tp.PartitionCount())

	for id := 0; id < 3; id++ {
		_, err := os.Stat(filepath.Join(dir, fmt.Sprintf("orders-%d", id)))
		require.True(t, os.IsNotExist(err))
	}
}

// TestTopicRetentionSweep verifies the per-topic retention pass removes
// sealed segments from live partitions.
func TestTopicRetentionSweep(t *testing.T) {
	dir := t.TempDir()

	tp := New("orders", Config{
		SegmentSize:   32,
		NumPartitions: 1,
		BaseDir:       dir,
	})
	require.NoError(t, tp.InitPartitions())
	defer tp.Close()

	for i := 0; i < 5; i++ {
		_, err := tp.Append(0, []byte("hello world"))
		require.NoError(t, err)
	}

	require.NoError(t, tp.CleanupOldSegments(0, 0))

	_, found, err := tp.Read(0, 0)
	require.NoError(t, err)
	require.False(t, found)

	got, found, err := tp.Read(0, 4)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "hello world", string(got))
}
