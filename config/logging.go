package config

import (
	"strings"

	jww "github.com/spf13/jwalterweatherman"
)

// ConfigureLogging maps LOG_LEVEL onto the jww stdout threshold.
// Unknown levels fall back to info.
func ConfigureLogging(level string) jww.Threshold {
	threshold := jww.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		threshold = jww.LevelTrace
	case "debug":
		threshold = jww.LevelDebug
	case "warn", "warning":
		threshold = jww.LevelWarn
	case "error":
		threshold = jww.LevelError
	case "fatal":
		threshold = jww.LevelFatal
	}
	jww.SetStdoutThreshold(threshold)
	return threshold
}
