package domain

import "time"

// Sink names the store a record write failed against.
type Sink string

const (
	SinkNone       Sink = ""
	SinkWideColumn Sink = "wide_column"
	SinkRelational Sink = "relational"
)

// RecordResult is the outcome of writing one record during a cycle.
type RecordResult struct {
	Index      int
	Record     InventoryRecord
	FailedSink Sink
	Err        error
}

func (r RecordResult) OK() bool {
	return r.Err == nil
}

// CycleReport accumulates per-record outcomes of one persistence cycle.
type CycleReport struct {
	CycleID    string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []RecordResult
}

func NewCycleReport(cycleID string, size int) *CycleReport {
	return &CycleReport{
		CycleID:   cycleID,
		StartedAt: time.Now(),
		Results:   make([]RecordResult, 0, size),
	}
}

func (r *CycleReport) Add(result RecordResult) {
	r.Results = append(r.Results, result)
}

func (r *CycleReport) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.OK() {
			n++
		}
	}
	return n
}

func (r *CycleReport) Failed() int {
	return len(r.Results) - r.Succeeded()
}

// FailedAt counts records whose write failed against the given sink.
func (r *CycleReport) FailedAt(sink Sink) int {
	n := 0
	for _, res := range r.Results {
		if !res.OK() && res.FailedSink == sink {
			n++
		}
	}
	return n
}

// PublishReport summarises one publisher's sends after Flush.
type PublishReport struct {
	Sent   int
	Failed int
}

// CycleOutcome is everything one ingestion cycle produced.
type CycleOutcome struct {
	SnapshotID string
	Report     *CycleReport
	PersistErr error
	Publish    PublishReport
}
