package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"

	"github.com/alfredjeanlab/skyfeed/internal/model"
	"github.com/alfredjeanlab/skyfeed/internal/render"
	"github.com/alfredjeanlab/skyfeed/internal/ui"
)

// maxTextWidth is the text column width in table output.
const maxTextWidth = 80

func printJSON(w io.Writer, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Fprintln(w, string(data))
}

func printPostTable(w io.Writer, page *model.PostPage) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tAUTHOR\tTEXT")
	for _, p := range page.Posts {
		text, _ := render.Truncate(oneLine(p.Text), maxTextWidth)
		fmt.Fprintf(tw, "%s\t%s\t%s\n",
			ui.RenderMuted(p.CreatedAt.Local().Format(time.TimeOnly)),
			ui.RenderAccent(p.Author),
			ui.Highlight(text, page.EffectiveFilter),
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%s\n", render.Stats(len(page.Posts), page.Total, page.EffectiveFilter))
}

func printStats(w io.Writer, s *model.Stats) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Posts:\t%d\n", s.Posts)
	fmt.Fprintf(tw, "Queued:\t%d\n", s.Queued)
	fmt.Fprintf(tw, "Sessions:\t%d (%d active)\n", s.Sessions, s.ActiveSessions)
	fmt.Fprintf(tw, "Views:\t%d\n", s.Views)
	fmt.Fprintf(tw, "Subscribers:\t%d global, %d scoped\n", s.Subscribers.Global, s.Subscribers.Scoped)
	fmt.Fprintf(tw, "Feed:\t%s (%d reconnects)\n", s.Feed.State, s.Feed.Reconnects)
	fmt.Fprintf(tw, "Uptime:\t%s\n", (time.Duration(s.UptimeSeconds) * time.Second).String())
	tw.Flush()
}

// printEvent writes one event as "topic  payload" on a single line.
func printEvent(w io.Writer, topic string, data []byte) {
	fmt.Fprintf(w, "%s  %s\n", ui.RenderAccent(topic), strings.TrimSpace(string(data)))
}

// oneLine collapses newlines so a post fits one table row.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
