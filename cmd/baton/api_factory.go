package main

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/baton/internal/api"
	"github.com/ShayCichocki/baton/internal/config"
)

// newAPIClient creates the Anthropic client from configuration, routing
// through Bedrock when configured.
func newAPIClient(cfg *config.Config) (*api.Client, error) {
	client, err := api.NewClient(api.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return nil, fmt.Errorf("create API client: %w", err)
	}
	return client, nil
}
