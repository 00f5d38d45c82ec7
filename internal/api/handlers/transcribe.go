package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/readaloud/internal/grading"
	"github.com/nikhilbhutani/readaloud/internal/pipeline"
)

// Runner executes the transcription pipeline for one upload.
type Runner interface {
	Run(ctx context.Context, in pipeline.Input) (*pipeline.Result, error)
}

type TranscribeHandler struct {
	runner    Runner
	maxMemory int64
	debug     bool
}

// NewTranscribeHandler builds the upload handler. With debug set, error
// responses include a stack trace.
func NewTranscribeHandler(runner Runner, maxMemory int64, debug bool) *TranscribeHandler {
	if maxMemory <= 0 {
		maxMemory = 32 << 20
	}
	return &TranscribeHandler{runner: runner, maxMemory: maxMemory, debug: debug}
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details"`
	Stack   string `json:"stack,omitempty"`
}

// Transcribe accepts a multipart upload with an "audio" file and an
// optional "originalText" to grade the transcription against.
func (h *TranscribeHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No audio file uploaded"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No audio file uploaded"})
		return
	}
	defer file.Close()

	reqID := chimiddleware.GetReqID(r.Context())
	res, err := h.runner.Run(r.Context(), pipeline.Input{
		Audio:        file,
		Filename:     header.Filename,
		OriginalText: r.FormValue("originalText"),
		RequestID:    reqID,
	})
	if err != nil {
		slog.Error("transcription failed", "request_id", reqID, "filename", header.Filename, "error", err)
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *TranscribeHandler) writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{
		Error:   errorMessage(err),
		Details: err.Error(),
	}

	var se *pipeline.StageError
	if errors.As(err, &se) {
		resp.Details = se.Err.Error()
	}
	if h.debug {
		if se != nil {
			resp.Stack = fmt.Sprintf("%+v", se.Err)
		} else {
			resp.Stack = fmt.Sprintf("%+v", err)
		}
	}

	writeJSON(w, http.StatusInternalServerError, resp)
}

func errorMessage(err error) string {
	if errors.Is(err, grading.ErrParse) {
		return "Failed to parse comparison analysis"
	}

	var se *pipeline.StageError
	if !errors.As(err, &se) {
		return "Failed to process audio"
	}
	switch se.Stage {
	case pipeline.StageUpload:
		return "Failed to store uploaded audio"
	case pipeline.StageTranscode:
		return "Audio conversion failed"
	case pipeline.StageTranscribe:
		return "Transcription failed"
	case pipeline.StageGrade:
		return "Comparison analysis failed"
	}
	return "Failed to process audio"
}
