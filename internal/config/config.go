// Package config handles tool configuration loading and management.
package config

import (
	"fmt"
	"regexp"

	"github.com/Faultbox/bzxsi/pkg/xsi"
)

// Config holds all xsitool settings.
type Config struct {
	Parse   ParseConfig   `yaml:"parse"`
	Logging LoggingConfig `yaml:"logging"`
}

// ParseConfig holds XSI reader settings.
type ParseConfig struct {
	// SkipBlocks lists extra block-type regexes skipped on top of the
	// default junk set. Patterns are anchored the way the built-in ones
	// are, e.g. "(?i)^(?:SI_)?Light".
	SkipBlocks []string `yaml:"skip_blocks"`

	// RejectDuplicates fails a parse on colliding frame names instead
	// of renaming them.
	RejectDuplicates bool `yaml:"reject_duplicates"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Parse: ParseConfig{
			SkipBlocks:       nil,
			RejectDuplicates: false,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// ToOptions compiles the parse settings into reader options.
func (c *Config) ToOptions() (*xsi.Options, error) {
	opts := &xsi.Options{Skip: xsi.DefaultSkip()}

	for _, pattern := range c.Parse.SkipBlocks {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid skip pattern %q: %w", pattern, err)
		}
		opts.Skip = append(opts.Skip, re)
	}

	if c.Parse.RejectDuplicates {
		opts.Duplicates = xsi.RejectDuplicates
	}

	return opts, nil
}
