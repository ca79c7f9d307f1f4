package config

import "flag"

var (
	flagConfig = flag.String("config", "", "Path to config file")
	flagDebug  = flag.Bool("debug", false, "Enable debug logging")
	flagSocket = flag.String("socket", "", "Control socket path")
	flagFade   = flag.Duration("fade", 0, "Effect fade duration")
	flagWatch  = flag.Bool("watch", false, "Rebuild effects when their shader file changes")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagSocket != "" {
		cfg.IPC.Socket = *flagSocket
	}
	if *flagFade > 0 {
		cfg.Effects.FadeDuration = *flagFade
	}
	if *flagWatch {
		cfg.Effects.WatchShaders = true
	}
}
