package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quillchat/quill/pkg/config"
	"github.com/quillchat/quill/pkg/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage saved conversations",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved conversations",
	Run: func(cmd *cobra.Command, args []string) {
		store := openHistory()
		defer store.Close()

		summaries, err := store.ListConversations()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(summaries) == 0 {
			fmt.Println("No conversations saved.")
			return
		}
		for _, s := range summaries {
			title := s.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("%s  %-40s %3d messages  %s\n", s.ID, title, s.Messages, s.UpdatedAt.Format("2006-01-02 15:04"))
		}
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Print a saved conversation",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store := openHistory()
		defer store.Close()

		conv, err := store.LoadConversation(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for _, msg := range conv.Messages {
			fmt.Printf("[%s] %s\n", msg.Role, msg.Content)
		}
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a saved conversation",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store := openHistory()
		defer store.Close()

		if err := store.DeleteConversation(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Deleted.")
	},
}

func openHistory() *history.Store {
	store, err := history.Open(config.Get().History.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening history: %v\n", err)
		os.Exit(1)
	}
	return store
}

func init() {
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	rootCmd.AddCommand(historyCmd)
}
