package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/baton/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage baton configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the merged configuration after applying user config, project
overrides, and environment variables. The API key is redacted.`,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default user config file",
	RunE:  runConfigInit,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

// configView is the YAML shape printed by 'config show'. It mirrors the
// file format so the output can be pasted back into a config file.
type configView struct {
	Anthropic struct {
		APIKey     string `yaml:"api_key"`
		Model      string `yaml:"model"`
		UseBedrock bool   `yaml:"use_bedrock"`
		AWSRegion  string `yaml:"aws_region,omitempty"`
		AWSProfile string `yaml:"aws_profile,omitempty"`
	} `yaml:"anthropic"`
	Defaults struct {
		TurnBudget       int    `yaml:"turn_budget"`
		ContextCapacity  int64  `yaml:"context_capacity"`
		TransientRetries int    `yaml:"transient_retries"`
		CheckpointDir    string `yaml:"checkpoint_dir"`
	} `yaml:"defaults"`
	Timeouts struct {
		Implementer string `yaml:"implementer"`
		Scorer      string `yaml:"scorer"`
	} `yaml:"timeouts"`
	Escalation struct {
		Wait string `yaml:"wait"`
	} `yaml:"escalation"`
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var view configView
	view.Anthropic.APIKey = redactKey(cfg.Anthropic.APIKey)
	view.Anthropic.Model = cfg.Anthropic.Model
	view.Anthropic.UseBedrock = cfg.Anthropic.UseBedrock
	view.Anthropic.AWSRegion = cfg.Anthropic.AWSRegion
	view.Anthropic.AWSProfile = cfg.Anthropic.AWSProfile
	view.Defaults.TurnBudget = cfg.Defaults.TurnBudget
	view.Defaults.ContextCapacity = cfg.Defaults.ContextCapacity
	view.Defaults.TransientRetries = cfg.Defaults.TransientRetries
	view.Defaults.CheckpointDir = cfg.Defaults.CheckpointDir
	view.Timeouts.Implementer = cfg.Timeouts.Implementer.String()
	view.Timeouts.Scorer = cfg.Timeouts.Scorer.String()
	view.Escalation.Wait = cfg.Escalation.Wait.String()

	out, err := yaml.Marshal(&view)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	fmt.Printf("# user config:    %s\n", config.GetUserConfigPath())
	if p := config.GetProjectConfigPath(); p != "" {
		fmt.Printf("# project config: %s\n", p)
	}
	fmt.Println()
	fmt.Print(string(out))
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := config.GetUserConfigPath()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := config.Save(config.Default()); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func redactKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
