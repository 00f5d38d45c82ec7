package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/readaloud/internal/grading"
	"github.com/nikhilbhutani/readaloud/internal/pipeline"
)

type fakeRunner struct {
	res   *pipeline.Result
	err   error
	calls int
	got   pipeline.Input
	body  string
}

func (f *fakeRunner) Run(_ context.Context, in pipeline.Input) (*pipeline.Result, error) {
	f.calls++
	f.got = in
	var buf bytes.Buffer
	buf.ReadFrom(in.Audio)
	f.body = buf.String()
	return f.res, f.err
}

func multipartRequest(t *testing.T, fields map[string]string, withAudio bool) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if withAudio {
		fw, err := mw.CreateFormFile("audio", "reading.m4a")
		require.NoError(t, err)
		fw.Write([]byte("fake-audio"))
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var got map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	return got
}

func stageErr(stage pipeline.Stage, err error) error {
	return &pipeline.StageError{Stage: stage, Err: pkgerrors.WithStack(err)}
}

func TestTranscribeMissingAudio(t *testing.T) {
	runner := &fakeRunner{}
	h := NewTranscribeHandler(runner, 0, false)

	for name, req := range map[string]*http.Request{
		"multipart without file": multipartRequest(t, map[string]string{"originalText": "hello"}, false),
		"not multipart":          httptest.NewRequest(http.MethodPost, "/api/transcribe", strings.NewReader(`{"audio":"x"}`)),
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Transcribe(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "No audio file uploaded", decode(t, rec)["error"])
		})
	}
	assert.Zero(t, runner.calls)
}

func TestTranscribeSuccess(t *testing.T) {
	runner := &fakeRunner{res: &pipeline.Result{
		Transcription: "for God so loved earth",
		Analysis: &grading.Report{
			ErrorCount:       1,
			ComparisonResult: "for god so loved <span class=\"incorrect\">earth</span>",
			Accuracy:         "83.33%",
			Errors:           []grading.Discrepancy{{Incorrect: "earth", Correct: "world"}},
		},
	}}
	h := NewTranscribeHandler(runner, 0, false)

	rec := httptest.NewRecorder()
	h.Transcribe(rec, multipartRequest(t, map[string]string{"originalText": "For God so loved the world"}, true))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "reading.m4a", runner.got.Filename)
	assert.Equal(t, "For God so loved the world", runner.got.OriginalText)
	assert.Equal(t, "fake-audio", runner.body)

	got := decode(t, rec)
	assert.Equal(t, "for God so loved earth", got["transcription"])
	analysis := got["analysis"].(map[string]any)
	assert.EqualValues(t, 1, analysis["errorCount"])
	assert.Equal(t, "83.33%", analysis["accuracy"])
	assert.Equal(t, []any{map[string]any{"incorrect": "earth", "correct": "world"}}, analysis["errors"])
}

func TestTranscribeWithoutOriginalTextOmitsAnalysis(t *testing.T) {
	runner := &fakeRunner{res: &pipeline.Result{Transcription: "hello"}}
	h := NewTranscribeHandler(runner, 0, false)

	rec := httptest.NewRecorder()
	h.Transcribe(rec, multipartRequest(t, nil, true))

	require.Equal(t, http.StatusOK, rec.Code)
	got := decode(t, rec)
	assert.Equal(t, "hello", got["transcription"])
	assert.NotContains(t, got, "analysis")
}

func TestTranscribeErrors(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantError   string
		wantDetails string
	}{
		{"transcode", stageErr(pipeline.StageTranscode, errors.New("ffmpeg failed: exit status 1")), "Audio conversion failed", "ffmpeg failed: exit status 1"},
		{"transcribe", stageErr(pipeline.StageTranscribe, errors.New("dial tcp: timeout")), "Transcription failed", "dial tcp: timeout"},
		{"grade service", stageErr(pipeline.StageGrade, errors.New("429 too many requests")), "Comparison analysis failed", "429 too many requests"},
		{"grade parse", stageErr(pipeline.StageGrade, fmt.Errorf("%w: invalid character 'S'", grading.ErrParse)), "Failed to parse comparison analysis", "failed to parse comparison analysis: invalid character 'S'"},
		{"upload", stageErr(pipeline.StageUpload, errors.New("disk full")), "Failed to store uploaded audio", "disk full"},
		{"unstaged", errors.New("odd"), "Failed to process audio", "odd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewTranscribeHandler(&fakeRunner{err: tt.err}, 0, false)
			rec := httptest.NewRecorder()
			h.Transcribe(rec, multipartRequest(t, map[string]string{"originalText": "x"}, true))

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			got := decode(t, rec)
			assert.Equal(t, tt.wantError, got["error"])
			assert.Equal(t, tt.wantDetails, got["details"])
			assert.NotContains(t, got, "stack")
			assert.NotContains(t, got, "transcription")
		})
	}
}

func TestTranscribeErrorStackInDebug(t *testing.T) {
	h := NewTranscribeHandler(&fakeRunner{err: stageErr(pipeline.StageTranscribe, errors.New("boom"))}, 0, true)

	rec := httptest.NewRecorder()
	h.Transcribe(rec, multipartRequest(t, nil, true))

	got := decode(t, rec)
	require.Contains(t, got, "stack")
	assert.Contains(t, got["stack"], "handlers.stageErr")
}

func TestDemoRoutes(t *testing.T) {
	h := NewDemoHandler()
	r := chi.NewRouter()
	r.Get("/", h.Root)
	r.Get("/api/users/{id}", h.GetUser)
	r.Post("/api/users", h.CreateUser)

	t.Run("root", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Welcome to the readaloud API!", decode(t, rec)["message"])
	})

	t.Run("get user", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/abc", nil))
		assert.Equal(t, "Fetching user with ID: abc", decode(t, rec)["message"])
	})

	t.Run("create user json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(`{"name":"Ada","email":"ada@example.com"}`))
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		got := decode(t, rec)
		assert.Equal(t, "User created", got["message"])
		assert.Equal(t, map[string]any{"name": "Ada", "email": "ada@example.com"}, got["user"])
	})

	t.Run("create user form", func(t *testing.T) {
		form := url.Values{"name": {"Grace"}, "email": {"grace@example.com"}}
		req := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, map[string]any{"name": "Grace", "email": "grace@example.com"}, decode(t, rec)["user"])
	})

	t.Run("create user bad json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(`{`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestReadyz(t *testing.T) {
	h := NewHealthHandlerWithChecks(map[string]PingFunc{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	got := decode(t, rec)
	assert.Equal(t, "unhealthy", got["status"])
	checks := got["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["database"])
	assert.Equal(t, "unhealthy: connection refused", checks["redis"])
}
