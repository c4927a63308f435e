package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// CredentialSeed declares one metered provider: its API keys plus the
// capabilities and rates its strategy registers with.
type CredentialSeed struct {
	Provider string   `yaml:"provider"`
	BaseURL  string   `yaml:"base_url"`
	Keys     []string `yaml:"keys"`
	RPS      float64  `yaml:"rps,omitempty"`

	TaskTypes       []string `yaml:"task_types,omitempty"`
	Priority        int      `yaml:"priority,omitempty"`
	BaseSuccessRate float64  `yaml:"base_success_rate,omitempty"`
	// Costs maps task type to the per-solve rate charged to the ledger when
	// the provider response does not carry a cost.
	Costs map[string]float64 `yaml:"costs,omitempty"`
}

type credentialsFile struct {
	Providers []CredentialSeed `yaml:"providers"`
}

// LoadCredentialSeeds reads the provider/key declarations from a YAML file.
// A missing path returns an empty seed list, not an error: deployments without
// metered providers simply run on native strategies.
func LoadCredentialSeeds(path string) ([]CredentialSeed, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var parsed credentialsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}

	for _, seed := range parsed.Providers {
		if seed.Provider == "" {
			return nil, fmt.Errorf("credentials file: provider name is required")
		}
	}
	return parsed.Providers, nil
}
