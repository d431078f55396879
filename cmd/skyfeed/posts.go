package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/skyfeed/internal/client"
)

var postsCmd = &cobra.Command{
	Use:     "posts",
	Short:   "List recent posts, newest first",
	GroupID: "feed",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, _ := cmd.Flags().GetString("filter")
		limit, _ := cmd.Flags().GetInt("limit")

		page, err := skyfeedClient.ListPosts(cmd.Context(), &client.ListPostsRequest{
			Filter: filter,
			Limit:  limit,
		})
		if err != nil {
			return fmt.Errorf("listing posts: %w", err)
		}

		if jsonOutput {
			printJSON(os.Stdout, page)
		} else {
			printPostTable(os.Stdout, page)
		}
		return nil
	},
}

var filterCmd = &cobra.Command{
	Use:     "filter <view-id> [text]",
	Short:   "Change the filter of a live view (empty text clears it)",
	GroupID: "feed",
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var text string
		if len(args) == 2 {
			text = args[1]
		}
		if err := skyfeedClient.SetFilter(cmd.Context(), args[0], text); err != nil {
			return fmt.Errorf("setting filter: %w", err)
		}
		if !jsonOutput {
			fmt.Printf("Filter for %s set to %q\n", args[0], text)
		}
		return nil
	},
}

func init() {
	postsCmd.Flags().StringP("filter", "f", "", "case-sensitive substring (ignored when shorter than 3 characters)")
	postsCmd.Flags().IntP("limit", "n", 0, "maximum posts to return (server default when 0)")
}
