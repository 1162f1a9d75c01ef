package dsync

// Metrics receives pipeline counters. The prometheus-backed implementation
// lives in the metrics package.
type Metrics interface {
	ChunkUploaded(ok bool, size int)
	ChunkDownloaded(ok bool, size int)
	FileProcessed(operation string, ok bool)
	MirrorSynced(mode string)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) ChunkUploaded(bool, int)    {}
func (NopMetrics) ChunkDownloaded(bool, int)  {}
func (NopMetrics) FileProcessed(string, bool) {}
func (NopMetrics) MirrorSynced(string)        {}
