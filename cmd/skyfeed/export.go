package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/skyfeed/internal/config"
	"github.com/alfredjeanlab/skyfeed/internal/snapshot"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every retained post as JSONL",
	Long: `Write every retained post as JSONL, oldest first.

Reads the database named by SKYFEED_DATABASE_URL directly; no server is
needed. The output is the same format the snapshot scheduler uploads.`,
	GroupID:           "data",
	Args:              cobra.NoArgs,
	PersistentPreRunE: localCommand,
	RunE: func(cmd *cobra.Command, args []string) error {
		outPath, _ := cmd.Flags().GetString("output")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := newLogger(cfg.LogLevel, cfg.LogFormat)
		st, err := openStore(cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		out := os.Stdout
		if outPath != "" && outPath != "-" {
			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("creating %s: %w", outPath, err)
			}
			defer f.Close()
			out = f
		}

		w := bufio.NewWriter(out)
		n, err := snapshot.ExportJSONL(cmd.Context(), st, w)
		if err != nil {
			return err
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Exported %d posts\n", n)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load posts from a JSONL export",
	Long: `Load posts from a JSONL export into the database named by
SKYFEED_DATABASE_URL. Posts already present are skipped. Use "-" to read
from stdin.`,
	GroupID:           "data",
	Args:              cobra.ExactArgs(1),
	PersistentPreRunE: localCommand,
	RunE: func(cmd *cobra.Command, args []string) error {
		in := os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer f.Close()
			in = f
		}

		posts, err := snapshot.ReadJSONL(in)
		if err != nil {
			return err
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := newLogger(cfg.LogLevel, cfg.LogFormat)
		st, err := openStore(cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		inserted, err := st.InsertPosts(cmd.Context(), posts)
		if err != nil {
			return fmt.Errorf("importing posts: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Imported %d of %d posts (%d already present)\n",
			inserted, len(posts), len(posts)-inserted)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "-", "output file (- for stdout)")
}
