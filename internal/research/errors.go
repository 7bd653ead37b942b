// Package research implements the phases of a report run: dual-model
// strategy discussion, agentic data collection, visualization planning and
// chunked report generation, coordinated by the Manager.
package research

import "fmt"

// DataCollectionError wraps a model or infrastructure failure that aborted
// a collection loop. Tool failures never produce it; they are fed back to
// the model as error results instead.
type DataCollectionError struct {
	Channel string
	Err     error
}

func (e *DataCollectionError) Error() string {
	return fmt.Sprintf("data collection on channel %s: %v", e.Channel, e.Err)
}

func (e *DataCollectionError) Unwrap() error { return e.Err }

// ReportGenerationError wraps a model failure during chunked report
// generation. Running out of attempts is not an error; the accumulated text
// is returned as-is in that case.
type ReportGenerationError struct {
	Attempt int
	Err     error
}

func (e *ReportGenerationError) Error() string {
	return fmt.Sprintf("report generation attempt %d: %v", e.Attempt, e.Err)
}

func (e *ReportGenerationError) Unwrap() error { return e.Err }

// StageError names the pipeline stage that failed so run records and logs
// can attribute the failure.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
