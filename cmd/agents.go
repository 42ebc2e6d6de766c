package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quillchat/quill/pkg/chat"
	"github.com/quillchat/quill/pkg/config"
	"github.com/quillchat/quill/pkg/controllers"
	"github.com/quillchat/quill/pkg/history"
	"github.com/quillchat/quill/pkg/llm"
	"github.com/quillchat/quill/pkg/stream"
)

var agentProviders []string

var agentsCmd = &cobra.Command{
	Use:   "agents [prompt]",
	Short: "Send one prompt to multiple providers concurrently",
	Long:  `Fan a single prompt out to several providers at once and print each response as it lands. At most three providers run per request.`,
	Args:  cobra.ExactArgs(1),
	Run:   runAgents,
}

func init() {
	agentsCmd.Flags().StringSliceVar(&agentProviders, "providers", nil, "providers to query (default: all configured)")
	rootCmd.AddCommand(agentsCmd)
}

func runAgents(cmd *cobra.Command, args []string) {
	cfg := config.Get()

	registry, err := llm.FromConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	names := agentProviders
	if len(names) == 0 {
		names = registry.List()
	}

	conv := chat.NewConversation("", "")
	conv = chat.AddMessage(conv, chat.NewUserMessage(args[0]))

	coordinator := controllers.NewCoordinator(registry, cfg)
	results := coordinator.Run(cmd.Context(), names, conv)

	failed := 0
	for _, result := range results {
		fmt.Printf("--- %s (%s) ---\n", result.Provider, result.Model)
		if result.Message.Content != "" {
			fmt.Println(result.Message.Content)
		}
		if result.State != stream.StateComplete {
			failed++
			fmt.Printf("[%s: %v]\n", strings.ToLower(result.State.String()), result.Err)
		}
		fmt.Println()
	}

	if store, err := history.Open(cfg.History.DatabasePath); err == nil {
		defer store.Close()
		merged := controllers.Merge(conv, results)
		if _, err := store.SaveConversation(merged); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not save conversation: %v\n", err)
		}
	}

	if failed == len(results) {
		os.Exit(1)
	}
}
