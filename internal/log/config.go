package log

type Config struct {
	Segment struct {
		// MaxSegmentBytes is the soft cap on a segment's log file. The
		// size check runs before each write, so a single append may push
		// the file past the cap by one record.
		MaxSegmentBytes uint64
		// InitialOffset is the base offset of the first segment created
		// in an empty directory.
		InitialOffset uint64
	}
}
