package callwatch

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RuleSet is the call-script checklist a transcript is scored against.
// Loaded from SCRIPT_RULES_FILE; JSON files parse too since JSON is a YAML
// subset.
type RuleSet struct {
	// Greetings: at least one must appear in the transcript.
	Greetings []string `yaml:"greetings"`
	// Required: every phrase must appear.
	Required []string `yaml:"required"`
	// Forbidden: no phrase may appear.
	Forbidden []string `yaml:"forbidden"`
	// FragmentLimit is the alert excerpt size in runes.
	FragmentLimit int `yaml:"fragment_limit"`
}

// Evaluation is the outcome of scoring one transcript.
type Evaluation struct {
	Fragment      string
	FragmentLimit int
	Compliant     bool
	Deviations    []string
}

// DefaultRules reproduces the built-in greeting heuristic used before rule
// files existed.
func DefaultRules() RuleSet {
	return RuleSet{
		Greetings:     []string{"доброго дня", "добрий день", "вітаю"},
		FragmentLimit: 500,
	}
}

// LoadRules reads a rule set from path. A missing file yields the defaults.
func LoadRules(path string) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRules(), nil
		}
		return RuleSet{}, err
	}

	rs := DefaultRules()
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return RuleSet{}, fmt.Errorf("parse rules %s: %w", path, err)
	}
	if rs.FragmentLimit <= 0 {
		rs.FragmentLimit = 500
	}
	return rs, nil
}

// Evaluate scores a transcript. Matching is case-insensitive substring.
func (rs RuleSet) Evaluate(transcript string) Evaluation {
	lower := strings.ToLower(transcript)

	var deviations []string
	if len(rs.Greetings) > 0 {
		found := false
		for _, g := range rs.Greetings {
			if strings.Contains(lower, strings.ToLower(g)) {
				found = true
				break
			}
		}
		if !found {
			deviations = append(deviations, "відсутнє привітання")
		}
	}
	for _, p := range rs.Required {
		if !strings.Contains(lower, strings.ToLower(p)) {
			deviations = append(deviations, fmt.Sprintf("відсутня обов'язкова фраза: «%s»", p))
		}
	}
	for _, p := range rs.Forbidden {
		if strings.Contains(lower, strings.ToLower(p)) {
			deviations = append(deviations, fmt.Sprintf("заборонена фраза: «%s»", p))
		}
	}

	return Evaluation{
		Fragment:      truncateRunes(transcript, rs.FragmentLimit),
		FragmentLimit: rs.FragmentLimit,
		Compliant:     len(deviations) == 0,
		Deviations:    deviations,
	}
}

// truncateRunes cuts s to at most n runes. Transcripts are Cyrillic, so a
// byte cut would split characters.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
