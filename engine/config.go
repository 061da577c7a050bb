package engine

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
)

// Config is the process profile: the dashboard process and step display
// names plus the document and journal-note constants of the journalizing
// workflow. Deployments load it from a YAML file; the names must match
// the dashboard catalog exactly.
type Config struct {
	ProcessName string `yaml:"process_name" validate:"required"`

	Steps struct {
		Intake     string `yaml:"intake" validate:"required"`
		Journalize string `yaml:"journalize" validate:"required"`
		Contractor string `yaml:"contractor" validate:"required"`
		Consent    string `yaml:"consent" validate:"required"`
	} `yaml:"steps"`

	Document struct {
		Dir      string `yaml:"dir" validate:"required"`
		FileName string `yaml:"file_name" validate:"required"`
		Type     string `yaml:"type" validate:"required"`
	} `yaml:"document"`

	Note struct {
		Message string `yaml:"message" validate:"required"`
		// Lookup is the note text as the target system stores it, when
		// that differs from the message sent to the application.
		Lookup string `yaml:"lookup"`
	} `yaml:"note"`
}

// NoteLookup returns the note text used for the existence check.
func (c *Config) NoteLookup() string {
	if c.Note.Lookup != "" {
		return c.Note.Lookup
	}
	return c.Note.Message
}

// LoadConfig reads and validates a process profile from a YAML file.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading process profile: %w", err)
	}
	cfg := new(Config)
	if err = yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing process profile: %w", err)
	}
	if err = validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validating process profile: %w", err)
	}
	return cfg, nil
}
