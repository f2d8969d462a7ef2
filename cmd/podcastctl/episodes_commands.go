package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"research-podcaster/internal/models"
)

func newEpisodesCommand(ctx *commandContext) *cobra.Command {
	episodesCmd := &cobra.Command{
		Use:   "episodes",
		Short: "Manage the public episode catalog",
	}

	episodesCmd.AddCommand(newEpisodesListCommand(ctx))
	episodesCmd.AddCommand(newEpisodesPromoteCommand(ctx))
	episodesCmd.AddCommand(newEpisodesUnpromoteCommand(ctx))

	return episodesCmd
}

func newEpisodesListCommand(ctx *commandContext) *cobra.Command {
	var category string
	var inFeed bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List promoted episodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEnvironment(func(env *environment) error {
				episodes, err := env.store.ListEpisodes(cmd.Context(), models.EpisodeFilter{Category: category, InFeedOnly: inFeed})
				if err != nil {
					return err
				}
				if len(episodes) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No episodes")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(episodeColumns, buildEpisodeRows(episodes)))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Only episodes in this category")
	cmd.Flags().BoolVar(&inFeed, "in-feed", false, "Only episodes submitted to the feed")
	return cmd
}

func newEpisodesPromoteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "promote <filename>",
		Short: "Publish a completed job in the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEnvironment(func(env *environment) error {
				ep, err := env.publisher.Promote(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("promote %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Promoted %s (%s)\n", ep.CanonicalFilename, ep.Title)
				return nil
			})
		},
	}
}

func newEpisodesUnpromoteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unpromote <filename>",
		Short: "Remove an episode from the catalog and the feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEnvironment(func(env *environment) error {
				if err := env.publisher.Unpromote(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("unpromote %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Unpromoted %s\n", args[0])
				return nil
			})
		},
	}
}
