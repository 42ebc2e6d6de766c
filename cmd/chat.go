package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/quillchat/quill/pkg/chat"
	"github.com/quillchat/quill/pkg/config"
	"github.com/quillchat/quill/pkg/controllers"
	"github.com/quillchat/quill/pkg/display"
	"github.com/quillchat/quill/pkg/history"
	"github.com/quillchat/quill/pkg/llm"
	"github.com/quillchat/quill/pkg/logger"
	"github.com/quillchat/quill/pkg/tools"
)

var promptFlag string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the configured provider",
	Long:  `Start an interactive chat session, or send a single prompt with --prompt.`,
	Run:   runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&promptFlag, "prompt", "p", "", "send a single prompt and exit")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) {
	cfg := config.Get()

	registry, err := llm.FromConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	provider, err := registry.GetDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	store, err := history.Open(cfg.History.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening history: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	saver := history.NewSaver(store, cfg.History.SaveDebounce)
	defer saver.Close()

	sink := display.NewConsole(cfg.ShowThinking)
	controller := controllers.NewChatController(provider, tools.DefaultRegistry(cfg), store, saver, sink, cfg)

	conv := newConversation(cfg, provider)

	if promptFlag != "" {
		conv, err = controller.Send(cmd.Context(), conv, promptFlag)
		if err != nil {
			os.Exit(1)
		}
		return
	}

	runInteractive(controller, conv, provider)
}

// runInteractive reads prompts from stdin until EOF or /exit. Ctrl-C cancels
// the in-flight response without ending the session.
func runInteractive(controller *controllers.ChatController, conv chat.Conversation, provider llm.Provider) {
	// Fix the conversation id up front so Ctrl-C can target the first
	// in-flight turn.
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	convID := conv.ID

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		for range sigCh {
			controller.Cancel(convID)
		}
	}()

	fmt.Printf("Chatting with %s (%s). Type /exit to quit.\n", provider.Name(), provider.Model())

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/exit", "/quit":
			return
		case "/retry":
			next, err := controller.Retry(context.Background(), conv)
			if err != nil {
				logger.Warn("retry failed: %v", err)
				continue
			}
			conv = next
			continue
		}

		next, err := controller.Send(context.Background(), conv, input)
		if err != nil {
			logger.Warn("chat turn failed: %v", err)
		}
		if next.ID != "" {
			conv = next
		}
	}
}

func newConversation(cfg *config.Config, provider llm.Provider) chat.Conversation {
	system := systemPrompt(cfg, provider.Name())
	if system != "" {
		return chat.NewConversationWithSystem(provider.Name(), provider.Model(), system)
	}
	return chat.NewConversation(provider.Name(), provider.Model())
}

func systemPrompt(cfg *config.Config, provider string) string {
	switch provider {
	case "ollama", "langchain":
		return cfg.Ollama.SystemPrompt
	case "openai":
		return cfg.OpenAI.SystemPrompt
	}
	return ""
}
