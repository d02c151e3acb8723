package normalize

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// TokenPattern is a single normalization rule loaded from configuration.
type TokenPattern struct {
	Name        string `yaml:"name"`
	Regex       string `yaml:"regex"`
	Placeholder string `yaml:"placeholder"`
	Description string `yaml:"description"`
}

// patternsConfig is the shape of a patterns YAML file.
type patternsConfig struct {
	Patterns []TokenPattern `yaml:"patterns"`
}

// CompiledPattern is a token pattern with its regex compiled.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Placeholder string
	Description string
}

// LoadPatterns loads token patterns from a YAML file. The file order is the
// application order, which is significant: composite tokens (timestamps,
// UUIDs) must be listed before the generic digit collapse or their numeric
// fragments get tokenized first and corrupt the remaining pattern.
func LoadPatterns(path string) ([]CompiledPattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading patterns file: %w", err)
	}

	var config patternsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing patterns YAML: %w", err)
	}

	compiled := make([]CompiledPattern, 0, len(config.Patterns))
	for _, p := range config.Patterns {
		regex, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("compiling pattern %s: %w", p.Name, err)
		}

		compiled = append(compiled, CompiledPattern{
			Name:        p.Name,
			Regex:       regex,
			Placeholder: p.Placeholder,
			Description: p.Description,
		})
	}

	return compiled, nil
}

// DefaultPatterns returns the built-in token patterns, in application order.
func DefaultPatterns() []CompiledPattern {
	return []CompiledPattern{
		{
			Name:        "timestamp",
			Regex:       regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?`),
			Placeholder: "<TIMESTAMP>",
			Description: "ISO-8601-like timestamps",
		},
		{
			Name:        "uuid",
			Regex:       regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`),
			Placeholder: "<UUID>",
			Description: "Standard UUID format",
		},
		{
			Name:        "number",
			Regex:       regexp.MustCompile(`\d+`),
			Placeholder: "<NUM>",
			Description: "Any run of digits",
		},
	}
}
