package aiproto

import (
	"log/slog"
	"os"

	deployconfig "github.com/aiproto/aiproto/internal/config"
	"github.com/aiproto/aiproto/internal/resilience"
	"github.com/aiproto/aiproto/internal/router"
	"github.com/aiproto/aiproto/internal/transport"
)

// LoadConfigFile reads a YAML deployment configuration from path (with
// ${VAR}-style environment variable expansion) and translates it into a
// Config ready for New. Use this when a deployment wants its manifest
// roots, retry/fallback/resilience tuning, and routing strategy to live in
// a file rather than be assembled in code.
func LoadConfigFile(path string) (Config, error) {
	fc, err := deployconfig.LoadFromFile(path)
	if err != nil {
		return Config{}, err
	}
	return fromFileConfig(fc), nil
}

func fromFileConfig(fc *deployconfig.Config) Config {
	return Config{
		ManifestRoots:     fc.Manifest.Roots,
		ManifestRemoteURL: fc.Manifest.RemoteURL,
		StrictStreaming:   fc.Manifest.StrictStreaming,

		RouterStrategy: router.Strategy(fc.Routing.Strategy),

		RetryConfig: resilience.RetryConfig{
			MaxRetries:      fc.Retry.MaxRetries,
			MinDelay:        fc.Retry.MinDelay,
			MaxDelay:        fc.Retry.MaxDelay,
			Jitter:          resilience.JitterStrategy(fc.Retry.Jitter),
			ExponentialBase: fc.Retry.ExponentialBase,
		},
		FallbackConfig: resilience.FallbackConfig{
			MaxAttemptsPerTarget: fc.Fallback.MaxAttemptsPerTarget,
		},
		Preflight: resilience.PreflightConfig{
			MaxConcurrent: fc.Preflight.MaxConcurrent,
		},
		Resilience: resilience.ManagerConfig{
			CircuitBreaker: resilience.CircuitBreakerConfig{
				FailureThreshold:    fc.Resilience.FailureThreshold,
				SuccessThreshold:    fc.Resilience.SuccessThreshold,
				Timeout:             fc.Resilience.CooldownPeriod,
				HalfOpenMaxRequests: fc.Resilience.HalfOpenMaxRequests,
			},
			DefaultRate:  fc.Resilience.DefaultRate,
			DefaultBurst: fc.Resilience.DefaultBurst,
		},
		Transport: transport.Config{
			ConnectTimeout:   fc.Transport.ConnectTimeout,
			RequestTimeout:   fc.Transport.RequestTimeout,
			IdleChunkTimeout: fc.Transport.IdleChunkTimeout,
			TrustEnv:         fc.Transport.TrustEnv,
		},

		Logger: loggerForLevel(fc.Logging),
	}
}

func loggerForLevel(lc deployconfig.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
