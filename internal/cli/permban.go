package cli

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Wikid82/jailkeeper/internal/models"
)

func (c *CLI) newPermBanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "permban",
		Aliases: []string{"permanent-bans"},
		Short:   "Manage bans that are re-applied on demand",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List permanent bans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bans, err := c.Services.PermanentBans.List()
			if err != nil {
				return err
			}
			return c.render(bans, func() {
				t := c.newTable()
				t.AppendHeader(table.Row{"ID", "IP", "Jail", "Reason", "Added"})
				for _, b := range bans {
					t.AppendRow(table.Row{b.ID, b.Value, b.Scope.String(), b.Reason, b.AddedAt.Local().Format(time.DateTime)})
				}
				t.Render()
			})
		},
	}

	var jail, reason string
	add := &cobra.Command{
		Use:   "add IP|CIDR",
		Short: "Declare a permanent ban",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ban, err := c.Services.PermanentBans.Add(cmd.Context(), args[0], models.ParseBanScope(jail), reason)
			if err != nil {
				return err
			}
			return c.render(ban, func() {
				c.success("permanent ban %s added for %s in %s", ban.ID, ban.Value, ban.Scope.String())
			})
		},
	}
	add.Flags().StringVar(&jail, "jail", "all", "jail name, or all")
	add.Flags().StringVar(&reason, "reason", "", "free-form note")

	remove := &cobra.Command{
		Use:     "remove ID|IP",
		Aliases: []string{"rm"},
		Short:   "Remove declarations by id or address",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := c.Services.PermanentBans.Remove(args[0])
			if err != nil {
				return err
			}
			c.success("%d declaration(s) removed", n)
			return nil
		},
	}

	apply := &cobra.Command{
		Use:   "apply",
		Short: "Issue a ban command for every declaration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := c.Services.PermanentBans.Apply(cmd.Context())
			if err != nil {
				return err
			}
			return c.render(res, func() {
				c.success("%d applied, %d failed, %d ban commands", res.Applied, res.Failed, res.Commands)
				for _, f := range res.Failures {
					c.failure("%s in %s: %s", f.Value, f.Jail, f.Error)
				}
			})
		},
	}

	cmd.AddCommand(list, add, remove, apply)
	return cmd
}
