// Package api provides direct Anthropic API integration for the
// implementer and scorer roles.
package api

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"
)

// Client is the shared Anthropic connection for the implementer and
// scorer, with per-session token accounting.
type Client struct {
	inner   anthropic.Client
	model   anthropic.Model
	tracker *TokenTracker
}

// ClientConfig carries the connection settings from the config layer.
type ClientConfig struct {
	// Model is the model both roles run on.
	Model anthropic.Model
	// APIKey falls back to the ANTHROPIC_API_KEY env var when empty.
	APIKey string
	// UseAWSBedrock routes calls through AWS Bedrock instead of the
	// direct API.
	UseAWSBedrock bool
	// AWSRegion is the Bedrock region (e.g., "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS profile name to use.
	AWSProfile string
}

// NewClient creates a client from the given settings.
func NewClient(cfg ClientConfig) (*Client, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()

		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}

		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	inner := anthropic.NewClient(opts...)

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if cfg.UseAWSBedrock {
		model = translateModelForBedrock(model)
	}

	return &Client{
		inner:   inner,
		model:   model,
		tracker: NewTokenTracker(),
	}, nil
}

// translateModelForBedrock converts standard Anthropic model names to
// Bedrock cross-region inference profile format.
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
		anthropic.ModelClaudeOpus4_5_20251101:   "us.anthropic.claude-opus-4-5-20251101-v1:0",
		anthropic.ModelClaude3_7Sonnet20250219:  "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}

	if bedrockModel, ok := bedrockModels[model]; ok {
		return anthropic.Model(bedrockModel)
	}
	return model
}

// sdk hands the underlying SDK client to the implementer and scorer.
// Package-private so the SDK types never leak past this package.
func (c *Client) sdk() *anthropic.Client {
	return &c.inner
}

// Model returns the configured model name.
func (c *Client) Model() anthropic.Model {
	return c.model
}

// Tracker returns the token tracker for this client.
func (c *Client) Tracker() *TokenTracker {
	return c.tracker
}

// TokenTracker accumulates token usage across implementer and scorer
// calls so a session can report its total spend. Counts only grow; the
// tracker lives and dies with one client.
type TokenTracker struct {
	mu        sync.Mutex
	inputTok  int64
	outputTok int64
	calls     int
}

// NewTokenTracker creates a new token tracker.
func NewTokenTracker() *TokenTracker {
	return &TokenTracker{}
}

// Add records token usage from an API call.
func (t *TokenTracker) Add(input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputTok += input
	t.outputTok += output
	t.calls++
}

// Total returns the input and output tokens tracked so far.
func (t *TokenTracker) Total() (input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inputTok, t.outputTok
}

// Calls returns the number of API calls made.
func (t *TokenTracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Cost estimates the session's spend in USD.
// Sonnet pricing, approximate: $3/1M input, $15/1M output.
func (t *TokenTracker) Cost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	inputCost := float64(t.inputTok) / 1_000_000 * 3.0
	outputCost := float64(t.outputTok) / 1_000_000 * 15.0
	return inputCost + outputCost
}
