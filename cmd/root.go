package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quillchat/quill/pkg/config"
	"github.com/quillchat/quill/pkg/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "quill",
	Short: "Streaming LLM chat for the terminal",
	Long:  `Quill is a terminal chat client for LLM providers with streaming responses, tool calls, and conversation history.`,
	Run: func(cmd *cobra.Command, args []string) {
		runChat(cmd, args)
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is .quill/settings.yaml)")

	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level")
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().String("provider", "", "provider to chat with (ollama, openai, gemini, langchain)")
	viper.BindPFlag("provider", rootCmd.PersistentFlags().Lookup("provider"))
}

func initConfig() {
	if _, err := config.Load(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	logger.Init()
}
