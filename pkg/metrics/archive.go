package metrics

// ArchiveMetrics provides observability for archive copies.
type ArchiveMetrics interface {
	// RecordCopy records one archive copy attempt of the given kind
	// ("download" or "bundle").
	RecordCopy(kind string, bytes int64, err error)
}

// NewNoopArchiveMetrics returns an ArchiveMetrics that discards everything.
func NewNoopArchiveMetrics() ArchiveMetrics {
	return noopArchiveMetrics{}
}

type noopArchiveMetrics struct{}

func (noopArchiveMetrics) RecordCopy(string, int64, error) {}
