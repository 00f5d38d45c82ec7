package grading

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nikhilbhutani/readaloud/internal/llm"
)

// ErrParse is returned when the model reply is not a JSON report.
var ErrParse = errors.New("failed to parse comparison analysis")

// Missing marks an absent word in a Discrepancy.
const Missing = "[missing]"

// FillerTokens are dropped from both texts before comparison.
var FillerTokens = []string{"um", "umm", "uh", "uhh", "ah", "ahh", "er", "erm", "hmm", "mm"}

// Report is the word-level comparison of a transcription with its reference text.
type Report struct {
	ErrorCount       int           `json:"errorCount"`
	ComparisonResult string        `json:"comparisonResult"`
	Accuracy         string        `json:"accuracy"`
	Errors           []Discrepancy `json:"errors"`
}

// Discrepancy pairs a transcribed word with the word the reference expects.
type Discrepancy struct {
	Incorrect string `json:"incorrect"`
	Correct   string `json:"correct"`
}

// Grader asks a chat model to compare a transcription with the original text.
// The comparison itself is done by the model; Grader only owns the prompt
// and the shape of the reply.
type Grader struct {
	gateway llm.Gateway
	model   string
}

// Grade holds the report together with the usage of the model call.
type Grade struct {
	Report   *Report
	Provider string
	Model    string
	Tokens   int
	CostUSD  float64
}

func NewGrader(gw llm.Gateway, model string) *Grader {
	if model == "" {
		model = "gpt-4o"
	}
	return &Grader{gateway: gw, model: model}
}

func (g *Grader) Model() string { return g.model }

// Grade sends both texts in a single user message. The texts are not
// escaped; the contract with the model is the system prompt.
func (g *Grader) Grade(ctx context.Context, original, transcribed string) (*Grade, error) {
	resp, err := g.gateway.Chat(ctx, llm.ChatRequest{
		Model: g.model,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(original, transcribed)},
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("comparison request: %w", err)
	}

	report, err := ParseReport(resp.Content)
	if err != nil {
		return nil, err
	}

	return &Grade{
		Report:   report,
		Provider: resp.Provider,
		Model:    resp.Model,
		Tokens:   resp.TotalTokens,
		CostUSD:  resp.CostUSD,
	}, nil
}

// ParseReport decodes a model reply into a Report. A surrounding Markdown
// code fence is tolerated; anything else that is not a JSON object of the
// report shape yields an error wrapping ErrParse.
func ParseReport(content string) (*Report, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	if !strings.HasPrefix(content, "{") {
		return nil, fmt.Errorf("%w: reply is not a JSON object", ErrParse)
	}

	var report Report
	if err := json.Unmarshal([]byte(content), &report); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if report.Errors == nil {
		report.Errors = []Discrepancy{}
	}
	return &report, nil
}

func userPrompt(original, transcribed string) string {
	return fmt.Sprintf("Original text: %s\n\nTranscribed text: %s", original, transcribed)
}

var systemPrompt = `You compare a transcription of someone reading aloud with the original text they were reading.

Before comparing, normalize BOTH texts:
1. Convert all letters to lowercase.
2. Remove all punctuation (periods, commas, exclamation marks, question marks, quotes, ellipses, dashes).
3. Remove these filler words wherever they appear: ` + strings.Join(FillerTokens, ", ") + `.
4. Collapse repeated whitespace.

Then compare the normalized texts word by word, in order:
- A transcribed word that differs from the original word at that position is an error: {"incorrect": "<transcribed word>", "correct": "<original word>"}.
- A transcribed word with no counterpart in the original is an error: {"incorrect": "<transcribed word>", "correct": "` + Missing + `"}.
- An original word that was skipped is an error: {"incorrect": "` + Missing + `", "correct": "<original word>"}.
- When one transcribed word replaces a short phrase of the original (for example "earth" for "the world"), count a single error for the main word.
- Filler words and punctuation are never errors.

Reply with ONLY a JSON object, no prose and no code fences:
{
  "errorCount": 0,
  "comparisonResult": "<HTML rendering of the original text where each wrong word is wrapped in <span class=\"incorrect\">...</span> followed by <span class=\"correct\">...</span>>",
  "accuracy": "100.00%",
  "errors": [{"incorrect": "...", "correct": "..."}]
}

Rules for the fields:
- "errorCount" is a non-negative integer equal to the number of entries in "errors".
- "accuracy" is (correct words / words in the normalized original) * 100, formatted with two decimals and a trailing "%".
- "errors" is an empty array when there are no errors.

Example: original "For God so loved the world", transcription "Umm for God so loved earth ahh" gives
{"errorCount": 1, "comparisonResult": "for god so loved the <span class=\"incorrect\">earth</span> <span class=\"correct\">world</span>", "accuracy": "83.33%", "errors": [{"incorrect": "earth", "correct": "world"}]}`
