package main

import (
	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <pending-id> <item-id>",
	Short: "Answer a clarification request by choosing one of its candidates",
	Long: `Replays the suspended update with the chosen item and commits it. If another
update in the same batch is also ambiguous, a new clarification request is printed.
Answering a request that was superseded or already answered fails without changes.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.Engine.ResolvePendingAction(ctx, args[0], args[1])
		if err != nil {
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		return printOutcome(cmd.OutOrStdout(), out, asJSON)
	},
}

func init() {
	resolveCmd.Flags().Bool("json", false, "print the outcome as JSON")
	rootCmd.AddCommand(resolveCmd)
}
