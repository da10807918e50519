package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nstogner/plantchat/pkg/config"
	"github.com/nstogner/plantchat/pkg/domain"
	"github.com/nstogner/plantchat/pkg/store"
)

var historyConversation string

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "inspect stored conversations",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "list stored conversation ids",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(kv store.KV) error {
			lister, ok := kv.(store.Lister)
			if !ok {
				return errors.New("store backend cannot list conversations")
			}
			keys, err := lister.Keys(cmd.Context(), store.Key(""))
			if err != nil {
				return err
			}
			for _, k := range keys {
				if id, ok := store.ConversationID(k); ok {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
			}
			return nil
		})
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "print a stored conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(kv store.KV) error {
			msgs := store.NewConversationStore(kv, historyConversation, 0).Load(cmd.Context())
			if len(msgs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No messages.")
				return nil
			}
			for _, m := range msgs {
				label := userStyle.Render("You:")
				if m.Role == domain.RoleAssistant {
					label = senderStyle.Render("Assistant:")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n\n", label, m.Text)
			}
			return nil
		})
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "delete a stored conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(kv store.KV) error {
			if err := store.NewConversationStore(kv, historyConversation, 0).Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared conversation %q.\n", historyConversation)
			return nil
		})
	},
}

func init() {
	historyCmd.PersistentFlags().StringVar(&historyConversation, "conversation", "default", "conversation id")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyClearCmd)
}

// withStore opens the configured backend for the duration of fn. History
// commands never reach the remote service, so its settings are not checked.
func withStore(fn func(store.KV) error) error {
	cfg, err := config.Resolve(configPath)
	if err != nil {
		return err
	}
	cfg.Remote.Transport = config.TransportMock
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	kv, closeKV, err := openKV(cfg.Store)
	if err != nil {
		return err
	}
	defer closeKV()
	return fn(kv)
}
