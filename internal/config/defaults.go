package config

const (
	defaultDataDir             = "~/.local/share/voiceline"
	defaultLogDir              = "~/.local/share/voiceline/logs"
	defaultSimilarityThreshold = 0.40
	defaultMinSpeakerDuration  = 5.0
	defaultUpdateWeight        = 1.0
	defaultMinSegmentDuration  = 1.0
	defaultMaxSegmentDuration  = 15.0
	defaultDiarizerThreads     = 4
	defaultClusteringThreshold = 0.5
	defaultDiarizerProvider    = "cpu"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Identity: Identity{
			SimilarityThreshold: defaultSimilarityThreshold,
			MinSpeakerDuration:  defaultMinSpeakerDuration,
			UpdateOnMatch:       false,
			UpdateWeight:        defaultUpdateWeight,
		},
		Segments: Segments{
			MinDuration: defaultMinSegmentDuration,
			MaxDuration: defaultMaxSegmentDuration,
		},
		Diarizer: Diarizer{
			NumThreads:          defaultDiarizerThreads,
			ClusteringThreshold: defaultClusteringThreshold,
			Provider:            defaultDiarizerProvider,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
