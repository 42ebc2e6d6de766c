package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quillchat/quill/pkg/config"
	"github.com/quillchat/quill/pkg/llm"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List configured providers and their models",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Get()

		registry, err := llm.FromConfig(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		for _, name := range registry.List() {
			provider, err := registry.Get(name)
			if err != nil {
				continue
			}
			marker := " "
			if name == cfg.Provider {
				marker = "*"
			}
			fmt.Printf("%s %-12s %s\n", marker, name, provider.Model())
		}
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
