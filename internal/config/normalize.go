package config

import "strings"

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Diarizer.SegmentationModel != "" {
		if c.Diarizer.SegmentationModel, err = expandPath(c.Diarizer.SegmentationModel); err != nil {
			return err
		}
	}
	if c.Diarizer.EmbeddingModel != "" {
		if c.Diarizer.EmbeddingModel, err = expandPath(c.Diarizer.EmbeddingModel); err != nil {
			return err
		}
	}

	if c.Identity.UpdateWeight <= 0 {
		c.Identity.UpdateWeight = defaultUpdateWeight
	}
	if c.Diarizer.NumThreads <= 0 {
		c.Diarizer.NumThreads = defaultDiarizerThreads
	}
	c.Diarizer.Provider = strings.ToLower(strings.TrimSpace(c.Diarizer.Provider))
	if c.Diarizer.Provider == "" {
		c.Diarizer.Provider = defaultDiarizerProvider
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}
