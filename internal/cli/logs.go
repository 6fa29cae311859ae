package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Wikid82/jailkeeper/internal/models"
)

func (c *CLI) newLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Work with the engine's security log",
	}
	cmd.AddCommand(c.newLogsFollowCmd())
	return cmd
}

func (c *CLI) formatEvent(ev *models.BanEvent) string {
	action := color.RedString("%-5s", ev.Action)
	if ev.Action == models.ActionUnban {
		action = color.GreenString("%-5s", ev.Action)
	}
	return fmt.Sprintf("%s %s %-15s %s", ev.Timestamp.Local().Format(time.DateTime), action, ev.Jail, ev.IP)
}

func (c *CLI) newLogsFollowCmd() *cobra.Command {
	var record, poll, all bool
	cmd := &cobra.Command{
		Use:   "follow",
		Short: "Print bans and unbans as the engine logs them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.follow(ctx, record, poll, all)
		},
	}
	cmd.Flags().BoolVar(&record, "record", false, "store every event in the history")
	cmd.Flags().BoolVar(&poll, "poll", false, "poll the file instead of using inotify")
	cmd.Flags().BoolVar(&all, "all", false, "print lines that are not bans or unbans too")
	return cmd
}

func (c *CLI) follow(ctx context.Context, record, poll, all bool) error {
	f := c.Services.Follower
	f.Record = record
	f.Poll = poll
	c.warn("following %s, Ctrl-C to stop", c.Config.SecurityLogPath)
	return f.Follow(ctx, func(line string, ev *models.BanEvent) {
		switch {
		case ev == nil && c.jsonOutput():
		case ev == nil:
			if all {
				fmt.Fprintln(c.out, color.HiBlackString("%s", line))
			}
		case c.jsonOutput():
			_ = c.printJSON(ev)
		default:
			fmt.Fprintln(c.out, c.formatEvent(ev))
		}
	})
}
