package entity

// ClipRecord is one line of a clip list: a labeled frame range inside an
// extracted frame directory.
type ClipRecord struct {
	DirName        string
	StartFrame     int
	DurationFrames int
	LabelIndex     int
}

// VideoListEntry is one line of a video list.
type VideoListEntry struct {
	DirName    string
	NumFrames  int
	LabelIndex int
}
