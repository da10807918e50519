// plantchat is a streaming plant-care assistant.
//
// Usage:
//
//	export GEMINI_API_KEY="your-api-key"
//	plantchat serve                      # websocket server
//	plantchat chat --conversation fern   # terminal chat
//	plantchat history show --conversation fern
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/nstogner/plantchat/pkg/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "plantchat",
	Short: "Plant-care chat assistant",
	Long: `Chat with a Gemini model about caring for your plants.

Conversations are persisted per id, so a chat can be resumed from the
terminal or from a browser connected to the websocket server.`,
	Example: `  # Serve the websocket API
  $ plantchat serve --addr :8080

  # Chat in the terminal about a specific plant
  $ plantchat chat --conversation fern --context "plant: Boston fern"

  # Run without network access
  $ PLANTCHAT_TRANSPORT=mock plantchat chat`,
	SilenceUsage: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.toml (default "+config.DefaultPath()+")")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(historyCmd)
}

// loadConfig resolves configuration for a subcommand.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
