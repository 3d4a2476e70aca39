// Package commands implements the aiproto CLI's command tree using Cobra.
package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aiproto/aiproto"
	"github.com/aiproto/aiproto/internal/router"
)

var (
	// Global flags
	configFile      string
	manifestRoots   []string
	remoteManifest  string
	strictStreaming bool
	provider        string
	model           string
	jsonOutput      bool
	verbose         bool
)

var rootCmd = &cobra.Command{
	Use:   "aiproto",
	Short: "aiproto - protocol-driven LLM API client",
	Long: `aiproto is a command-line demonstration of the aiproto library.

Use it to send chat requests through a provider manifest, or to resolve and
validate a provider's manifest by its ID.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML deployment config file (flags below override its values)")
	rootCmd.PersistentFlags().StringSliceVar(&manifestRoots, "manifest-root", nil, "filesystem directory to search for protocol manifests (repeatable)")
	rootCmd.PersistentFlags().StringVar(&remoteManifest, "remote-manifest-url", "", "base URL queried as a last resort for an unresolved provider ID")
	rootCmd.PersistentFlags().BoolVar(&strictStreaming, "strict-streaming", true, "require streaming manifests to declare content_path")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "provider ID (must match a loaded manifest's id)")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "model ID to request")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit JSON output")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
}

func logger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newClient builds a Client from --config (if given) layered with the
// global flags, shared by every subcommand that needs to reach a provider.
// Flag values always win over the file for manifest-root and
// remote-manifest-url since a repeatable/empty flag default is
// unambiguous; strict-streaming keeps whatever the file set unless the
// flag default (true) was explicitly flipped off.
func newClient() (*aiproto.Client, error) {
	cfg := aiproto.DefaultConfig()
	if configFile != "" {
		fileCfg, err := aiproto.LoadConfigFile(configFile)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	if len(manifestRoots) > 0 {
		cfg.ManifestRoots = manifestRoots
	}
	if remoteManifest != "" {
		cfg.ManifestRemoteURL = remoteManifest
	}
	if !strictStreaming {
		cfg.StrictStreaming = false
	}
	if cfg.RouterStrategy == "" {
		cfg.RouterStrategy = router.StrategySimpleShuffle
	}
	cfg.Logger = logger()
	return aiproto.New(cfg)
}
