package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/itinerary-cli/internal/model"
)

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Confirm or dismiss itinerary items",
}

var itemsConfirmCmd = &cobra.Command{
	Use:   "confirm <trip-id> <item-id>",
	Short: "Mark an item as confirmed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setItemState(cmd, args[0], args[1], model.StateConfirmed)
	},
}

var itemsDismissCmd = &cobra.Command{
	Use:   "dismiss <trip-id> <item-id>",
	Short: "Hide an item from the itinerary without deleting it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setItemState(cmd, args[0], args[1], model.StateDismissed)
	},
}

func setItemState(cmd *cobra.Command, tripID, itemID string, state model.ItemState) error {
	ctx := cmd.Context()

	env, err := initEnv(ctx, "store")
	if err != nil {
		return err
	}
	defer env.Close()

	it, err := env.Engine.SetItemState(ctx, tripID, itemID, state)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", it.Title, it.State)
	return nil
}

func init() {
	itemsCmd.AddCommand(itemsConfirmCmd)
	itemsCmd.AddCommand(itemsDismissCmd)
	rootCmd.AddCommand(itemsCmd)
}
