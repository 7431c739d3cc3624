package api

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/baton/internal/engine"
	"github.com/ShayCichocki/baton/pkg/models"
)

// Common errors for verdict parsing.
var (
	// ErrMalformedVerdict indicates the scorer response could not be parsed.
	ErrMalformedVerdict = errors.New("malformed verdict response")
	// ErrScoreOutOfRange indicates a score outside the valid 0.0-1.0 range.
	ErrScoreOutOfRange = errors.New("score out of range (must be 0.0-1.0)")
	// ErrMissingOutcome indicates no recognizable outcome line was found.
	ErrMissingOutcome = errors.New("missing outcome")
)

// Regular expressions for parsing scorer responses.
var (
	// scorePattern matches "SCORE: 0.85" or "Score: .9".
	scorePattern = regexp.MustCompile(`(?im)^\s*SCORE:\s*([0-9]*\.?[0-9]+)\s*$`)
	// outcomePattern matches "OUTCOME: accept|retry|escalate".
	outcomePattern = regexp.MustCompile(`(?im)^\s*OUTCOME:\s*(accept|retry|escalate)\s*$`)
	// rationalePattern captures everything after "RATIONALE:" to the end.
	rationalePattern = regexp.MustCompile(`(?is)RATIONALE:\s*(.+)$`)
)

const scorerSystemPrompt = `You are a strict quality reviewer for generated software work.
Judge the submitted output against the task description and reply with exactly three lines:

SCORE: <a number between 0.0 and 1.0>
OUTCOME: <accept | retry | escalate>
RATIONALE: <one short paragraph explaining your judgment>

Use "accept" only when the output fully satisfies the task. Use "retry" when
another revision could plausibly fix the problems. Use "escalate" when the task
itself is unclear or cannot be completed as described.`

// Scorer judges work artifacts through the Anthropic API.
type Scorer struct {
	client    *Client
	maxTokens int64
}

// NewScorer creates an API-backed scorer.
func NewScorer(client *Client) *Scorer {
	return &Scorer{client: client, maxTokens: 1024}
}

var _ engine.Scorer = (*Scorer)(nil)

// ScoreWork submits an artifact for judgment and returns the parsed
// verdict plus the call's token cost.
func (s *Scorer) ScoreWork(ctx context.Context, task *models.Task, art *models.WorkArtifact) (*models.QualityVerdict, int64, error) {
	prompt := fmt.Sprintf("Task (%s): %s\n\nSubmitted output (turn %d):\n%s",
		task.Type, task.Description, art.Turn, art.Content)

	resp, err := s.client.sdk().Messages.New(ctx, anthropic.MessageNewParams{
		Model:     s.client.Model(),
		MaxTokens: s.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: scorerSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, 0, classifyCallError("score", err)
	}

	s.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)
	cost := resp.Usage.InputTokens + resp.Usage.OutputTokens

	var text string
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += variant.Text
		}
	}

	verdict, err := ParseVerdict(text)
	if err != nil {
		// A garbled reviewer reply is retryable; the next attempt usually
		// formats correctly.
		return nil, cost, &engine.TransientAgentError{Op: "score", Err: err}
	}
	return verdict, cost, nil
}

// ParseVerdict extracts a QualityVerdict from a scorer response string.
// It looks for SCORE, OUTCOME, and RATIONALE lines. Returns an error if
// the response is empty, the score is out of range, or no outcome is
// present. A missing rationale is tolerated.
func ParseVerdict(response string) (*models.QualityVerdict, error) {
	if strings.TrimSpace(response) == "" {
		return nil, ErrMalformedVerdict
	}

	verdict := &models.QualityVerdict{}

	matches := scorePattern.FindStringSubmatch(response)
	if len(matches) < 2 {
		return nil, ErrMalformedVerdict
	}
	score, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return nil, ErrMalformedVerdict
	}
	if score < 0 || score > 1 {
		return nil, ErrScoreOutOfRange
	}
	verdict.Score = score

	matches = outcomePattern.FindStringSubmatch(response)
	if len(matches) < 2 {
		return nil, ErrMissingOutcome
	}
	switch strings.ToLower(matches[1]) {
	case "accept":
		verdict.Outcome = models.OutcomeAccept
	case "retry":
		verdict.Outcome = models.OutcomeRetry
	case "escalate":
		verdict.Outcome = models.OutcomeEscalate
	}

	if matches = rationalePattern.FindStringSubmatch(response); len(matches) >= 2 {
		verdict.Rationale = strings.TrimSpace(matches[1])
	}

	return verdict, nil
}
