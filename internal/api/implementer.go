package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/baton/internal/engine"
	"github.com/ShayCichocki/baton/pkg/models"
)

const implementerSystemPrompt = `You are a software implementer working on one task at a time.
Produce the best complete output you can for the task described by the user.
If reviewer feedback is included, address every point of it in this revision.`

// Implementer produces work output for a task through the Anthropic API.
type Implementer struct {
	client    *Client
	maxTokens int64
}

// NewImplementer creates an API-backed implementer.
func NewImplementer(client *Client) *Implementer {
	return &Implementer{client: client, maxTokens: 8192}
}

var _ engine.Implementer = (*Implementer)(nil)

// GenerateWork requests one unit of work for the task. The returned
// artifact carries the call's token cost so the caller can account for
// context consumption.
func (i *Implementer) GenerateWork(ctx context.Context, task *models.Task, feedback string) (*models.WorkArtifact, error) {
	prompt := fmt.Sprintf("Task (%s): %s", task.Type, task.Description)
	if feedback != "" {
		prompt += fmt.Sprintf("\n\nReviewer feedback on your previous attempt:\n%s", feedback)
	}
	if task.TurnCount > 0 {
		prompt += fmt.Sprintf("\n\nThis is revision %d.", task.TurnCount+1)
	}

	resp, err := i.client.sdk().Messages.New(ctx, anthropic.MessageNewParams{
		Model:     i.client.Model(),
		MaxTokens: i.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: implementerSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, classifyCallError("generate", err)
	}

	i.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var content string
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			content += variant.Text
		}
	}

	return &models.WorkArtifact{
		TaskID:     task.ID,
		Turn:       task.TurnCount + 1,
		Content:    content,
		CostTokens: resp.Usage.InputTokens + resp.Usage.OutputTokens,
		ProducedAt: time.Now().UTC(),
	}, nil
}

// classifyCallError separates retryable API failures from permanent
// ones. Timeouts, throttling, and server errors are worth re-issuing
// within the same turn; everything else is not.
func classifyCallError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &engine.TransientAgentError{Op: op, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &engine.TransientAgentError{Op: op, Err: err}
	}

	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == 408, apierr.StatusCode == 429, apierr.StatusCode >= 500:
			return &engine.TransientAgentError{Op: op, Err: err}
		default:
			return err
		}
	}

	return err
}
