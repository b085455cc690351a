package task

// Stats contains aggregated statistics across all tasks. Derived, never stored.
type Stats struct {
	Pending     int
	Downloading int
	Paused      int
	Completed   int
	Failed      int
	Cancelled   int

	TotalSize      int64
	DownloadedSize int64
	TotalSpeed     int64 // sum of active tasks' speeds

	// TotalProgress is the mean progress fraction over tasks currently
	// downloading, 0 when none are active.
	TotalProgress float64
}

// Total returns the number of tracked tasks.
func (s Stats) Total() int {
	return s.Pending + s.Downloading + s.Paused + s.Completed + s.Failed + s.Cancelled
}
