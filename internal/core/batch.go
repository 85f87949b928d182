package core

// DefaultCommitThreshold is the number of mapped rows accumulated before a
// flush is requested.
const DefaultCommitThreshold = 50000

// Batch buffers mapped records between flushes. It only holds records; the
// decision to flush belongs to the Importer.
type Batch struct {
	records   []Record
	threshold int
}

// NewBatch returns an empty batch that reports Full at threshold records.
// A non-positive threshold selects DefaultCommitThreshold.
func NewBatch(threshold int) *Batch {
	if threshold <= 0 {
		threshold = DefaultCommitThreshold
	}
	initial := threshold
	if initial > 1024 {
		initial = 1024
	}
	return &Batch{
		records:   make([]Record, 0, initial),
		threshold: threshold,
	}
}

// Add appends a record.
func (b *Batch) Add(rec Record) {
	b.records = append(b.records, rec)
}

// Size returns the number of buffered records.
func (b *Batch) Size() int {
	return len(b.records)
}

// Threshold returns the flush threshold.
func (b *Batch) Threshold() int {
	return b.threshold
}

// Full reports whether the batch reached its threshold.
func (b *Batch) Full() bool {
	return len(b.records) >= b.threshold
}

// Drain returns the buffered records in insertion order and empties the batch.
// The returned slice is owned by the caller.
func (b *Batch) Drain() []Record {
	out := b.records
	b.records = make([]Record, 0, cap(out))
	return out
}
