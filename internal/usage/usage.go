// Package usage records one event per transcription run. Events are a
// write-only side channel: nothing in the request path reads them back.
package usage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Outcome values besides the failing pipeline stage name.
const OutcomeSuccess = "success"

type Event struct {
	ID             uuid.UUID
	RequestID      string
	Filename       string
	Outcome        string
	Graded         bool
	STTProvider    string
	STTModel       string
	GraderProvider string
	GraderModel    string
	GraderTokens   int
	CostUSD        float64
	Latency        time.Duration
	Error          string
	CreatedAt      time.Time
}

type Recorder interface {
	Record(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

// Multi records to every recorder and joins their errors.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, e Event) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// New combines the non-nil recorders, falling back to Nop.
func New(recorders ...Recorder) Recorder {
	var m Multi
	for _, r := range recorders {
		if r != nil {
			m = append(m, r)
		}
	}
	switch len(m) {
	case 0:
		return Nop{}
	case 1:
		return m[0]
	}
	return m
}
