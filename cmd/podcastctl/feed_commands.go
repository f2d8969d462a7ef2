package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newFeedCommand(ctx *commandContext) *cobra.Command {
	feedCmd := &cobra.Command{
		Use:   "feed",
		Short: "Control distribution feed membership",
	}

	feedCmd.AddCommand(newFeedSubmitCommand(ctx))
	feedCmd.AddCommand(newFeedRemoveCommand(ctx))
	feedCmd.AddCommand(newFeedRebuildCommand(ctx))

	return feedCmd
}

func newFeedSubmitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <filename>",
		Short: "Add a promoted episode to the feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEnvironment(func(env *environment) error {
				ep, err := env.publisher.SubmitToFeed(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("submit %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is in the feed\n", ep.CanonicalFilename)
				return nil
			})
		},
	}
}

func newFeedRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <filename>",
		Short: "Take an episode out of the feed, keeping it in the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEnvironment(func(env *environment) error {
				ep, err := env.publisher.RemoveFromFeed(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("remove %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s removed from the feed\n", ep.CanonicalFilename)
				return nil
			})
		},
	}
}

func newFeedRebuildCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rewrite the feed document from the episode flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEnvironment(func(env *environment) error {
				n, err := env.publisher.RebuildFeed(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Feed rebuilt with %d episodes\n", n)
				return nil
			})
		},
	}
}
