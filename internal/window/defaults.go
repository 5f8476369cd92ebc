package window

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// defaultRule maps a model family (substring of the normalized display
// name) to an advertised context window. A rule may additionally gate on
// the version embedded in the name, for families whose window changed
// between releases.
type defaultRule struct {
	family     string
	constraint string
	window     int
}

// defaultRules is evaluated in order; first match wins. More specific
// families come before their prefixes.
var defaultRules = []defaultRule{
	{family: "opus", window: 200_000},
	{family: "sonnet", window: 200_000},
	{family: "haiku", window: 200_000},
	{family: "claude", window: 200_000},

	{family: "gpt-5", window: 272_000},
	{family: "gpt-4.1", window: 1_047_576},
	{family: "gpt-4o", window: 128_000},
	{family: "gpt-4", window: 128_000},
	{family: "gpt-3.5", window: 16_385},
	{family: "o3", window: 200_000},
	{family: "o4-mini", window: 200_000},

	{family: "gemini", window: 1_048_576},

	// Llama grew from 8k to 128k at 3.1.
	{family: "llama", constraint: ">= 3.1", window: 128_000},
	{family: "llama", window: 8_192},

	// Qwen moved to 128k-class windows at 2.5.
	{family: "qwen", constraint: ">= 2.5", window: 131_072},
	{family: "qwen", window: 32_768},
}

// versionPattern matches a major or major.minor version token. Dotted
// forms only: hyphenated numbers in model names are usually parameter
// counts, not versions.
var versionPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// DefaultWindow returns the advertised context window for a model display
// name, matched by family and version.
func DefaultWindow(model string) (int, bool) {
	name := strings.ToLower(strings.TrimSpace(model))
	if name == "" {
		return 0, false
	}

	for _, rule := range defaultRules {
		if !strings.Contains(name, rule.family) {
			continue
		}
		if rule.constraint != "" && !versionSatisfies(name, rule.constraint) {
			continue
		}
		return rule.window, true
	}
	return 0, false
}

// versionSatisfies checks the first version-looking token in the name
// against a semver constraint. Names without a parseable version fail the
// constraint so the unversioned fallback rule applies.
func versionSatisfies(name, constraint string) bool {
	raw := versionPattern.FindString(name)
	if raw == "" {
		return false
	}

	version, err := semver.NewVersion(raw)
	if err != nil {
		return false
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false
	}
	return c.Check(version)
}
