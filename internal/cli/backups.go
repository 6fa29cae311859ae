package cli

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func (c *CLI) newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "backup",
		Aliases: []string{"backups"},
		Short:   "List, restore and delete configuration backups",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backups, err := c.Services.Backups.List()
			if err != nil {
				return err
			}
			return c.render(backups, func() {
				t := c.newTable()
				t.AppendHeader(table.Row{"Name", "Kind", "Target", "Size", "Created"})
				for _, b := range backups {
					t.AppendRow(table.Row{b.Filename, b.Kind, b.Target, b.Size, b.CreatedAt.Local().Format(time.DateTime)})
				}
				t.Render()
			})
		},
	}

	restore := &cobra.Command{
		Use:   "restore NAME",
		Short: "Copy a backup over the file it was taken from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := c.confirm(fmt.Sprintf("Restore %s over the live file?", args[0]))
			if err != nil || !ok {
				return err
			}
			if err := c.Services.Backups.Restore(args[0]); err != nil {
				return err
			}
			c.success("%s restored", args[0])
			c.warn("run \"jailkeeper reload\" for the engine to pick it up")
			return nil
		},
	}

	remove := &cobra.Command{
		Use:     "delete NAME",
		Aliases: []string{"rm"},
		Short:   "Delete a backup",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.Services.Backups.Delete(args[0]); err != nil {
				return err
			}
			c.success("%s deleted", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, restore, remove)
	return cmd
}
