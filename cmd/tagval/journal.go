package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/chazu/tagval/config"
	"github.com/chazu/tagval/journal"
)

func handleJournalCommand(args []string, cfg *config.Config, out io.Writer) error {
	fs := flag.NewFlagSet("journal", flag.ContinueOnError)
	n := fs.Int("n", 20, "Number of entries to show")
	db := fs.String("db", cfg.Journal.Path, "Journal database (default: [journal].path)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *db == "" {
		return fmt.Errorf("no journal configured; set [journal].path or pass -db")
	}

	j, err := journal.Open(*db)
	if err != nil {
		return err
	}
	defer j.Close()

	entries, err := j.Recent(*n)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No collections recorded")
		return nil
	}
	fmt.Fprintf(out, "%-8s %-6s %-13s %8s %8s %12s %12s %10s\n",
		"SESSION", "GC", "REASON", "MARKED", "SWEPT", "BEFORE", "AFTER", "DURATION")
	for _, e := range entries {
		fmt.Fprintf(out, "%-8.8s %-6d %-13s %8d %8d %12d %12d %10s\n",
			e.Session, e.Number, e.Reason, e.Marked, e.SweptStrings+e.SweptObjects,
			e.BytesBefore, e.BytesAfter, e.Duration)
	}
	return nil
}
