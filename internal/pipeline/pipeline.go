// Package pipeline runs one upload through conversion, transcription and
// optional grading. Nothing is shared between runs except the read-only
// collaborators passed to NewService.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/nikhilbhutani/readaloud/internal/audio"
	"github.com/nikhilbhutani/readaloud/internal/grading"
	"github.com/nikhilbhutani/readaloud/internal/stt"
	"github.com/nikhilbhutani/readaloud/internal/usage"
)

type Stage string

const (
	StageUpload     Stage = "upload"
	StageTranscode  Stage = "transcode"
	StageTranscribe Stage = "transcribe"
	StageGrade      Stage = "grade"
)

// StageError reports which step of a run failed. Err carries a stack
// trace, printable with %+v.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

func stageError(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: errors.WithStack(err)}
}

type Grader interface {
	Grade(ctx context.Context, original, transcribed string) (*grading.Grade, error)
	Model() string
}

type Input struct {
	Audio        io.Reader
	Filename     string
	OriginalText string
	RequestID    string
}

type Result struct {
	Transcription string          `json:"transcription"`
	Analysis      *grading.Report `json:"analysis,omitempty"`
}

type Service struct {
	dir        string
	transcoder audio.Transcoder
	stt        stt.STTProvider
	grader     Grader
	recorder   usage.Recorder
}

func NewService(dir string, tc audio.Transcoder, sttProvider stt.STTProvider, grader Grader, rec usage.Recorder) *Service {
	if rec == nil {
		rec = usage.Nop{}
	}
	return &Service{
		dir:        dir,
		transcoder: tc,
		stt:        sttProvider,
		grader:     grader,
		recorder:   rec,
	}
}

// Run executes the steps in order and stops at the first failure. Grading
// only happens when OriginalText is non-blank; a grading failure discards
// the transcription. Every temp file is removed exactly once before Run
// returns.
func (s *Service) Run(ctx context.Context, in Input) (res *Result, err error) {
	start := time.Now()
	event := usage.Event{
		RequestID:   in.RequestID,
		Filename:    in.Filename,
		STTProvider: s.stt.Name(),
		STTModel:    s.stt.Model(),
	}
	files := &tempFiles{}
	defer files.removeAll()
	defer func() { s.record(ctx, event, err, start) }()

	upload, err := audio.Store(s.dir, in.Filename, in.Audio)
	if err != nil {
		return nil, stageError(StageUpload, err)
	}
	files.add(upload)

	normalized, err := s.transcoder.Transcode(ctx, upload)
	if err != nil {
		return nil, stageError(StageTranscode, err)
	}
	files.add(normalized)

	transcription, err := s.stt.Transcribe(ctx, stt.TranscriptionRequest{FilePath: normalized.Path})
	files.removeAll()
	if err != nil {
		return nil, stageError(StageTranscribe, err)
	}

	res = &Result{Transcription: transcription.Text}
	if strings.TrimSpace(in.OriginalText) == "" {
		return res, nil
	}

	event.Graded = true
	event.GraderModel = s.grader.Model()
	grade, err := s.grader.Grade(ctx, in.OriginalText, transcription.Text)
	if err != nil {
		return nil, stageError(StageGrade, err)
	}
	event.GraderProvider = grade.Provider
	event.GraderModel = grade.Model
	event.GraderTokens = grade.Tokens
	event.CostUSD = grade.CostUSD

	res.Analysis = grade.Report
	return res, nil
}

func (s *Service) record(ctx context.Context, event usage.Event, err error, start time.Time) {
	event.Latency = time.Since(start)
	event.Outcome = usage.OutcomeSuccess
	if err != nil {
		var se *StageError
		if errors.As(err, &se) {
			event.Outcome = string(se.Stage)
		}
		event.Error = err.Error()
	}

	// the request may already be cancelled; the event should still land
	if recErr := s.recorder.Record(context.WithoutCancel(ctx), event); recErr != nil {
		slog.Warn("failed to record usage", "request_id", event.RequestID, "error", recErr)
	}
}

// tempFiles tracks the files a run created. removeAll forgets each file
// after trying to delete it, so repeated calls never touch a path twice.
type tempFiles struct {
	files []audio.File
}

func (t *tempFiles) add(f audio.File) {
	t.files = append(t.files, f)
}

func (t *tempFiles) removeAll() {
	for _, f := range t.files {
		if err := audio.Remove(f); err != nil {
			slog.Warn("failed to remove temp file", "path", f.Path, "error", err)
		}
	}
	t.files = nil
}
