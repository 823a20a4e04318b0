package config

const (
	defaultDataDir              = "~/.local/share/conveyor"
	defaultLogDir               = "~/.local/share/conveyor/logs"
	defaultKnowledgeDir         = "~/.local/share/conveyor/knowledge"
	defaultCreationSegment      = "intake"
	defaultLeaseTTLMinutes      = 45
	defaultSweepIntervalSeconds = 30
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

func defaultAllowedSegments() []string {
	return []string{"intake", "writing", "qa", "review", "publish"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:      defaultDataDir,
			LogDir:       defaultLogDir,
			KnowledgeDir: defaultKnowledgeDir,
		},
		Routing: Routing{
			AllowedSegments: defaultAllowedSegments(),
			CreationSegment: defaultCreationSegment,
		},
		Leases: Leases{
			DefaultTTLMinutes:    defaultLeaseTTLMinutes,
			SweepIntervalSeconds: defaultSweepIntervalSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
