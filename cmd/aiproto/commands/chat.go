package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aiproto/aiproto"
	"github.com/aiproto/aiproto/internal/router"
	"github.com/aiproto/aiproto/pkg/types"
)

var (
	prompt          string
	system          string
	temperature     float64
	maxTokens       int
	stream          bool
	apiKeyOverride  string
	baseURLOverride string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Send a chat completion request",
	Long: `Send a chat completion request through a registered provider manifest.

Examples:
  aiproto chat --manifest-root ./manifests --provider openai --model gpt-4o --prompt "Hello"
  aiproto chat --provider anthropic --model claude-3-5-sonnet-20241022 --prompt "Hello" --stream`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVar(&prompt, "prompt", "", "user message (required)")
	chatCmd.Flags().StringVar(&system, "system", "", "system message")
	chatCmd.Flags().Float64Var(&temperature, "temperature", 0, "temperature (0 = provider default)")
	chatCmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "max tokens (0 = provider default)")
	chatCmd.Flags().BoolVar(&stream, "stream", false, "enable streaming output")
	chatCmd.Flags().StringVar(&apiKeyOverride, "api-key", "", "API key, overriding the manifest's default env var")
	chatCmd.Flags().StringVar(&baseURLOverride, "base-url", "", "override the manifest's endpoint base URL")

	_ = chatCmd.MarkFlagRequired("prompt")
}

func runChat(cmd *cobra.Command, args []string) error {
	if provider == "" {
		return fmt.Errorf("--provider is required")
	}
	if model == "" {
		return fmt.Errorf("--model is required")
	}

	client, err := newClient()
	if err != nil {
		return fmt.Errorf("build client: %w", err)
	}

	target := types.ProviderTarget{
		ProviderID:      provider,
		ModelID:         model,
		BaseURLOverride: baseURLOverride,
	}
	client.RegisterTarget(target, router.TargetConfig{Weight: 1})

	messages := make([]types.Message, 0, 2)
	if system != "" {
		messages = append(messages, types.Message{Role: "system", Content: system})
	}
	messages = append(messages, types.Message{Role: "user", Content: prompt})

	req := &types.CanonicalRequest{
		Model:    model,
		Messages: messages,
		Stream:   stream,
	}
	if maxTokens > 0 {
		req.MaxTokens = maxTokens
	}
	if temperature > 0 {
		req.Temperature = &temperature
	}

	ctx := context.Background()
	opts := aiproto.CallOptions{
		Stream:         stream,
		APIKeyOverride: apiKeyOverride,
	}

	if stream {
		return runStreamingChat(ctx, client, req, opts)
	}
	return runNonStreamingChat(ctx, client, req, opts)
}

func runNonStreamingChat(ctx context.Context, client *aiproto.Client, req *types.CanonicalRequest, opts aiproto.CallOptions) error {
	result, stats, _, err := client.Execute(ctx, req, opts)
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(result)
	}

	for _, choice := range result.Choices {
		fmt.Println(choice.Message.Content)
	}
	if verbose && result.Usage != nil {
		fmt.Fprintf(os.Stderr, "usage: %d prompt + %d completion = %d total tokens (target: %s)\n",
			result.Usage.PromptTokens, result.Usage.CompletionTokens, result.Usage.TotalTokens, stats.FinalTarget.String())
	}
	return nil
}

func runStreamingChat(ctx context.Context, client *aiproto.Client, req *types.CanonicalRequest, opts aiproto.CallOptions) error {
	events, _, _, err := client.ExecuteStream(ctx, req, opts)
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}

	for ev := range events {
		switch ev.Kind {
		case types.EventPartialContentDelta:
			fmt.Print(ev.ContentDelta)
		case types.EventStreamError:
			fmt.Println()
			if ev.Err != nil {
				return fmt.Errorf("chat: %s: %s", ev.Err.Kind, ev.Err.Message)
			}
			return fmt.Errorf("chat: stream failed")
		}
	}
	fmt.Println()
	return nil
}
