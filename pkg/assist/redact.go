package assist

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Rule masks one class of identifier in free text before it leaves the
// service.
type Rule struct {
	Name    string `yaml:"name" json:"name"`
	Pattern string `yaml:"pattern" json:"pattern"`
	Mask    string `yaml:"mask" json:"mask"`
	Enabled bool   `yaml:"enabled" json:"enabled"`
}

type RedactionConfig struct {
	Rules []Rule `yaml:"rules" json:"rules"`
}

// LoadRedactionRules reads rules from a YAML file. An empty path yields the
// defaults.
func LoadRedactionRules(path string) (RedactionConfig, error) {
	if path == "" {
		return DefaultRedactionRules(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultRedactionRules(), err
	}

	var cfg RedactionConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return RedactionConfig{}, err
	}
	if len(cfg.Rules) == 0 {
		return RedactionConfig{}, errors.New("no redaction rules configured")
	}
	return cfg, nil
}

func DefaultRedactionRules() RedactionConfig {
	return RedactionConfig{Rules: []Rule{
		{Name: "Email", Pattern: `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`, Mask: "[email]", Enabled: true},
		{Name: "Phone", Pattern: `(?:\+\d{1,3}[\s-]?)?\b\d{10}\b|\b\d{3}-\d{3}-\d{4}\b|\(\d{3}\)\s?\d{3}-\d{4}\b`, Mask: "[phone]", Enabled: true},
		{Name: "Aadhaar", Pattern: `\b\d{4}\s\d{4}\s\d{4}\b`, Mask: "[national-id]", Enabled: true},
		{Name: "SSN", Pattern: `\b\d{3}-\d{2}-\d{4}\b`, Mask: "[national-id]", Enabled: true},
	}}
}

type compiledRule struct {
	rule Rule
	re   *regexp.Regexp
}

// Redactor masks identifiers in prompt text. A nil *Redactor passes text
// through unchanged.
type Redactor struct {
	rules []compiledRule
}

func NewRedactor(cfg RedactionConfig) (*Redactor, error) {
	var compiled []compiledRule
	for _, rule := range cfg.Rules {
		if !rule.Enabled {
			continue
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, compiledRule{rule: rule, re: re})
	}
	return &Redactor{rules: compiled}, nil
}

// Redact returns text with every rule applied and the number of matches
// masked.
func (r *Redactor) Redact(text string) (string, int) {
	if r == nil {
		return text, 0
	}
	masked := 0
	for _, cr := range r.rules {
		masked += len(cr.re.FindAllStringIndex(text, -1))
		text = cr.re.ReplaceAllString(text, cr.rule.Mask)
	}
	return text, masked
}
