package main

import (
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/chazu/realmproxy/config"
	"github.com/chazu/realmproxy/journal"
)

// handleJournalCommand processes `realmctl journal`. The database defaults
// to the configured journal.
func handleJournalCommand(cfg *config.Config, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("journal", flag.ContinueOnError)
	db := fs.String("db", cfg.Journal, "Journal database")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *db == "" {
		return fmt.Errorf("%w: no journal configured; pass -db", errUsage)
	}
	realmName := ""
	if fs.NArg() > 0 {
		realmName = fs.Arg(0)
	}

	j, err := journal.Open(*db)
	if err != nil {
		return err
	}
	defer j.Close()

	events, err := j.Events(realmName)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tREALM\tEVENT\tDETAIL")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ev.Time.Format(time.RFC3339), ev.Realm, ev.Kind, ev.Detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d event(s)\n", len(events))
	return nil
}
