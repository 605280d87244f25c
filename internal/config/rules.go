// Package config loads sympatch rules files.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/symtools/sympatch/internal/rewrite"
	"github.com/symtools/sympatch/internal/safe"
)

const (
	// DefaultDir is the per-user configuration directory under $HOME.
	DefaultDir = ".sympatch"
	// RulesFileName is the default rules file name.
	RulesFileName = "sympatch.yaml"
	// EnvConfigDir overrides the directory the default rules file is read from.
	EnvConfigDir = "SYMPATCH_CONFIG"
)

// RulesFile is the on-disk rules file format. Rules are applied in order;
// the first rule that changes a path wins.
type RulesFile struct {
	Rules []RuleSpec `yaml:"rules"`
}

// RuleSpec is a single entry in a rules file. Either the from/to pair or
// the regex/replace pair must be set, never both.
type RuleSpec struct {
	From    string `yaml:"from,omitempty"`
	To      string `yaml:"to,omitempty"`
	Regex   string `yaml:"regex,omitempty"`
	Replace string `yaml:"replace,omitempty"`
}

func (s RuleSpec) compile() (rewrite.Rule, error) {
	literal := s.From != "" || s.To != ""
	regex := s.Regex != "" || s.Replace != ""

	switch {
	case literal && regex:
		return nil, fmt.Errorf("rule mixes from/to and regex/replace")
	case literal:
		return rewrite.NewLiteralRule(s.From, s.To)
	case regex:
		return rewrite.NewRegexpRule(s.Regex, s.Replace)
	default:
		return nil, fmt.Errorf("rule is empty")
	}
}

// Load reads a rules file and compiles it into a single Rule.
func Load(path string) (rewrite.Rule, error) {
	data, err := safe.ReadFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var file RulesFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}

	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("rules file %s contains no rules", path)
	}

	rules := make([]rewrite.Rule, 0, len(file.Rules))
	for i, spec := range file.Rules {
		r, err := spec.compile()
		if err != nil {
			return nil, fmt.Errorf("rules file %s, rule %d: %w", path, i+1, err)
		}
		rules = append(rules, r)
	}
	return rewrite.Chain(rules...), nil
}

// DefaultPath returns the path of the default rules file. The directory is
// resolved from the SYMPATCH_CONFIG environment variable when set, falling
// back to ~/.sympatch.
func DefaultPath() string {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return filepath.Join(dir, RulesFileName)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp/sympatch-fallback", RulesFileName)
	}
	return filepath.Join(homeDir, DefaultDir, RulesFileName)
}

// LoadDefault loads the default rules file when it exists. A missing file
// is not an error; the rule is nil in that case.
func LoadDefault() (rewrite.Rule, error) {
	path := DefaultPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return Load(path)
}
