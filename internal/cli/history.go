package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Wikid82/jailkeeper/internal/apperr"
	"github.com/Wikid82/jailkeeper/internal/models"
	"github.com/Wikid82/jailkeeper/internal/services"
)

// parseWhen accepts RFC 3339 or a plain local date.
func parseWhen(flag, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, time.Local); err == nil {
		return &t, nil
	}
	return nil, apperr.Validation("--%s must be RFC 3339 or YYYY-MM-DD", flag)
}

type historyFlags struct {
	ip, jail, action, since, until string
	limit                          int
}

func (f *historyFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.ip, "ip", "", "only this address")
	cmd.Flags().StringVar(&f.jail, "jail", "", "only this jail")
	cmd.Flags().StringVar(&f.action, "action", "", "ban or unban")
	cmd.Flags().StringVar(&f.since, "since", "", "start time (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.until, "until", "", "end time (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "maximum number of events, 0 for all")
}

func (f *historyFlags) filter() (services.HistoryFilter, error) {
	out := services.HistoryFilter{IP: f.ip, Jail: f.jail, Action: models.BanAction(f.action), Limit: f.limit}
	if out.Action != "" && !out.Action.Valid() {
		return out, apperr.Validation("unknown action %q", f.action)
	}
	var err error
	if out.Since, err = parseWhen("since", f.since); err != nil {
		return out, err
	}
	if out.Until, err = parseWhen("until", f.until); err != nil {
		return out, err
	}
	return out, nil
}

func (c *CLI) newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"hist"},
		Short:   "Query, import and export the ban history",
	}
	cmd.AddCommand(c.newHistoryListCmd(), c.newHistoryImportCmd(), c.newHistoryExportCmd(), c.newHistoryPurgeCmd())
	return cmd
}

func (c *CLI) newHistoryListCmd() *cobra.Command {
	var flags historyFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := flags.filter()
			if err != nil {
				return err
			}
			events, err := c.Services.History.Query(f)
			if err != nil {
				return err
			}
			return c.render(events, func() {
				t := c.newTable()
				t.AppendHeader(table.Row{"Time", "IP", "Jail", "Action", "Source", "Reason"})
				for _, ev := range events {
					t.AppendRow(table.Row{ev.Timestamp.Local().Format(time.DateTime), ev.IP, ev.Jail, ev.Action, ev.Source, ev.Reason})
				}
				t.Render()
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func (c *CLI) newHistoryImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [LOGFILE]",
		Short: "Import ban and unban lines from the engine log",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.Config.SecurityLogPath
			if len(args) == 1 {
				path = args[0]
			}
			res, err := c.Services.History.Import(path)
			if err != nil {
				return err
			}
			return c.render(res, func() {
				c.success("%s: %d lines, %d parsed, %d inserted, %d duplicates",
					res.Path, res.Lines, res.Parsed, res.Inserted, res.Duplicates)
			})
		},
	}
}

func (c *CLI) newHistoryExportCmd() *cobra.Command {
	var flags historyFlags
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the filtered history as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := flags.filter()
			if err != nil {
				return err
			}
			if outPath == "" || outPath == "-" {
				return c.Services.History.WriteCSV(c.out, f)
			}
			file, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("create %s: %w", outPath, err)
			}
			if err := c.Services.History.WriteCSV(file, f); err != nil {
				file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
			c.success("history written to %s", outPath)
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVarP(&outPath, "file", "f", "-", "destination file, - for stdout")
	return cmd
}

func (c *CLI) newHistoryPurgeCmd() *cobra.Command {
	var before string
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete the history, or only events older than --before",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cutoff, err := parseWhen("before", before)
			if err != nil {
				return err
			}
			msg := "Delete the whole ban history?"
			if cutoff != nil {
				msg = fmt.Sprintf("Delete every event before %s?", cutoff.Format(time.DateTime))
			}
			ok, err := c.confirm(msg)
			if err != nil || !ok {
				return err
			}
			n, err := c.Services.History.Purge(cutoff)
			if err != nil {
				return err
			}
			c.success("%d events deleted", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&before, "before", "", "only events older than this (RFC 3339 or YYYY-MM-DD)")
	return cmd
}
