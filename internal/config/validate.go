package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Identity.SimilarityThreshold <= 0 || c.Identity.SimilarityThreshold >= 1 {
		return fmt.Errorf("identity.similarity_threshold must be in (0, 1), got %g", c.Identity.SimilarityThreshold)
	}
	if c.Identity.MinSpeakerDuration < 0 {
		return fmt.Errorf("identity.min_speaker_duration must not be negative, got %g", c.Identity.MinSpeakerDuration)
	}
	if c.Segments.MinDuration <= 0 {
		return fmt.Errorf("segments.min_duration must be positive, got %g", c.Segments.MinDuration)
	}
	if c.Segments.MaxDuration <= c.Segments.MinDuration {
		return fmt.Errorf("segments.max_duration (%g) must exceed segments.min_duration (%g)",
			c.Segments.MaxDuration, c.Segments.MinDuration)
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
