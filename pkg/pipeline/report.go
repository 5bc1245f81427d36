package pipeline

import (
	"cyber-digest/pkg/domain"
)

// SourceFailure is a source skipped for the run
type SourceFailure struct {
	Source string
	Stage  string
	Err    error
}

func (f SourceFailure) Error() string {
	return f.Source + " (" + f.Stage + "): " + f.Err.Error()
}

func (f SourceFailure) Unwrap() error {
	return f.Err
}

// Report counts what happened across one run
type Report struct {
	Sources int
	Failed  []SourceFailure
	// Candidates is the number of links extracted before filtering
	Candidates int
	// Accepted passed filtering, classification and the date window
	Accepted int
	// Recorded were newly inserted into the store
	Recorded int
	// Duplicates were rejected by the store at record time
	Duplicates int
}

// Healthy is true when no source failed
func (r Report) Healthy() bool {
	return len(r.Failed) == 0
}

// Result is the pipeline output: recorded articles in source order
type Result struct {
	Articles []domain.Article
	Report   Report
}
