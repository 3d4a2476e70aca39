package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Inspect and validate protocol manifests",
}

var manifestValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Resolve and validate a provider's protocol manifest",
	Long: `Resolve a provider ID through the manifest loader's resolution chain
(registry, AI_PROTOCOL_PATH, --manifest-root roots, --remote-manifest-url)
and report whether it validates.

Example:
  aiproto manifest validate --manifest-root ./manifests --provider openai`,
	RunE: runManifestValidate,
}

func init() {
	rootCmd.AddCommand(manifestCmd)
	manifestCmd.AddCommand(manifestValidateCmd)
}

func runManifestValidate(cmd *cobra.Command, args []string) error {
	if provider == "" {
		return fmt.Errorf("--provider is required")
	}

	client, err := newClient()
	if err != nil {
		return fmt.Errorf("build client: %w", err)
	}

	m, err := client.LoadManifest(context.Background(), provider)
	if err != nil {
		return fmt.Errorf("manifest %q: %w", provider, err)
	}

	fmt.Printf("%s: ok (protocol_version=%s, streaming=%v, tools=%v)\n",
		m.ID, m.ProtocolVersion, m.Capabilities.Streaming, m.Capabilities.Tools)
	return nil
}
