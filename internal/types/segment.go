package types

// Segment describes one fetchable chunk of a playlist. Index defines the
// position of the chunk in the merged output.
type Segment struct {
	Index   int
	URL     string
	Headers map[string]string
}

type SegmentPhase int

const (
	SegmentPending SegmentPhase = iota
	SegmentDownloading
	SegmentDone
	SegmentFailed
)

// SegmentState is the coordinator's view of one segment during a single run
// attempt. It is never persisted.
type SegmentState struct {
	Segment      Segment
	TempPath     string
	BytesWritten int64
	TotalBytes   int64
	Phase        SegmentPhase
}
