package application

import (
	"errors"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Rule defines when missed doses escalate into an alert.
type Rule struct {
	Threshold int           `yaml:"threshold"`
	Window    time.Duration `yaml:"-"`
	Type      string        `yaml:"type"`
	Priority  string        `yaml:"priority"`
	Title     string        `yaml:"title"`
	Message   string        `yaml:"message"`
}

// UnmarshalYAML decodes a rule, accepting window as a duration string.
func (r *Rule) UnmarshalYAML(value *yaml.Node) error {
	type ruleYAML struct {
		Threshold int    `yaml:"threshold"`
		Window    string `yaml:"window"`
		Type      string `yaml:"type"`
		Priority  string `yaml:"priority"`
		Title     string `yaml:"title"`
		Message   string `yaml:"message"`
	}
	var raw ruleYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}
	r.Threshold = raw.Threshold
	r.Type = raw.Type
	r.Priority = raw.Priority
	r.Title = raw.Title
	r.Message = raw.Message
	if raw.Window != "" {
		window, err := time.ParseDuration(raw.Window)
		if err != nil {
			return err
		}
		r.Window = window
	}
	return nil
}

// Config defines escalation configuration.
type Config struct {
	Defaults Rule            `yaml:"defaults"`
	Patients map[string]Rule `yaml:"patients"`
}

// LoadConfig loads config from yaml or env.
func LoadConfig() (Config, error) {
	var cfg Config

	if path := os.Getenv("ESCALATION_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.Defaults.Threshold <= 0 {
		cfg.Defaults.Threshold = getenvIntDefault("ESCALATION_THRESHOLD", 3)
	}
	if cfg.Defaults.Window <= 0 {
		cfg.Defaults.Window = getenvDurationDefault("ESCALATION_WINDOW", 24*time.Hour)
	}
	if cfg.Defaults.Type == "" {
		cfg.Defaults.Type = "medication"
	}
	if cfg.Defaults.Priority == "" {
		cfg.Defaults.Priority = "high"
	}
	if cfg.Defaults.Title == "" {
		cfg.Defaults.Title = "Patient Medication Non-Adherence"
	}
	if cfg.Defaults.Message == "" {
		cfg.Defaults.Message = "Patient has missed {{missed}} medications in 24 hours"
	}
	if cfg.Defaults.Threshold <= 0 {
		return cfg, errors.New("escalation: threshold must be positive")
	}
	if cfg.Defaults.Window <= 0 {
		return cfg, errors.New("escalation: window must be positive")
	}
	return cfg, nil
}

// RuleForPatient returns the effective rule for a patient.
func (c Config) RuleForPatient(patientID string) Rule {
	if c.Patients != nil {
		if override, ok := c.Patients[patientID]; ok {
			return mergeRules(c.Defaults, override)
		}
	}
	return c.Defaults
}

func mergeRules(base, override Rule) Rule {
	if override.Threshold > 0 {
		base.Threshold = override.Threshold
	}
	if override.Window > 0 {
		base.Window = override.Window
	}
	if override.Type != "" {
		base.Type = override.Type
	}
	if override.Priority != "" {
		base.Priority = override.Priority
	}
	if override.Title != "" {
		base.Title = override.Title
	}
	if override.Message != "" {
		base.Message = override.Message
	}
	return base
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDurationDefault(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
