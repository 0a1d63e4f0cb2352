package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/eventgate/pkg/eventgate/journal"
)

// JournalCmd groups journal subcommands.
type JournalCmd struct {
	DB string `required:"" type:"path" help:"Path to the SQLite journal"`

	List  JournalListCmd  `cmd:"" help:"List recorded events"`
	Count JournalCountCmd `cmd:"" help:"Count recorded events"`
}

// JournalListCmd implements 'journal list'.
type JournalListCmd struct {
	Type        string        `help:"Only events of this type"`
	Correlation string        `help:"Only events with this correlation ID"`
	Since       time.Duration `help:"Only events recorded within this long ago"`
	Limit       int           `default:"50" help:"Maximum number of events"`
	Format      string        `enum:"table,json,yaml" default:"table" help:"Output format (table|json|yaml)"`
}

// Run lists journal entries.
func (c *JournalListCmd) Run(g *Global, root *CLI) error {
	j, err := journal.NewSQLiteJournal(root.Journal.DB)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	f := journal.Filter{Type: c.Type, CorrelationID: c.Correlation, Limit: c.Limit}
	if c.Since > 0 {
		f.Since = time.Now().Add(-c.Since)
	}
	entries, err := j.List(context.Background(), f)
	if err != nil {
		return err
	}

	switch c.Format {
	case "json":
		enc := json.NewEncoder(g.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "yaml":
		return yaml.NewEncoder(g.Out).Encode(entries)
	}

	tw := tabwriter.NewWriter(g.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tRECORDED\tTYPE\tSOURCE\tEVENT ID")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			e.Seq, e.RecordedAt.Format(time.RFC3339), e.EventType, e.Source, e.EventID)
	}
	return tw.Flush()
}

// JournalCountCmd implements 'journal count'.
type JournalCountCmd struct{}

// Run prints the number of entries.
func (c *JournalCountCmd) Run(g *Global, root *CLI) error {
	j, err := journal.NewSQLiteJournal(root.Journal.DB)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	n, err := j.Count(context.Background())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(g.Out, n)
	return err
}
