package cli

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Wikid82/jailkeeper/internal/version"
)

func (c *CLI) newVersionCmd() *cobra.Command {
	return noRuntime(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(c.out, version.Full())
			return nil
		},
	})
}

func (c *CLI) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the engine and every active jail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := c.Services.Bans.Status(ctx)
			if err != nil {
				return err
			}
			active := c.Service.IsActive(ctx)
			view := map[string]interface{}{"engine": st, "service_active": active}
			return c.render(view, func() {
				fmt.Fprintf(c.out, "engine running: %s  service active: %s\n", yesNo(st.Running), yesNo(active))
				if len(st.Jails) == 0 && len(st.Errors) == 0 {
					return
				}
				t := c.newTable()
				t.AppendHeader(table.Row{"Jail", "Failed", "Total failed", "Banned", "Total banned"})
				for _, js := range st.Jails {
					t.AppendRow(table.Row{js.Name, js.CurrentlyFailed, js.TotalFailed, js.CurrentlyBanned, js.TotalBanned})
				}
				t.Render()
				for jail, msg := range st.Errors {
					c.failure("%s: %s", jail, msg)
				}
			})
		},
	}
}

func (c *CLI) newBanCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "ban JAIL IP",
		Short: "Ban an address in a jail now",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.Services.Bans.Ban(cmd.Context(), args[0], args[1], reason); err != nil {
				return err
			}
			c.success("banned %s in %s", args[1], args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason stored in the history")
	return cmd
}

func (c *CLI) newUnbanCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "unban [JAIL] IP",
		Short: "Lift a ban in one jail, or in every jail with --all",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !all {
				if len(args) != 2 {
					return fmt.Errorf("unban needs JAIL and IP, or --all with IP")
				}
				if err := c.Services.Bans.Unban(ctx, args[0], args[1]); err != nil {
					return err
				}
				c.success("unbanned %s in %s", args[1], args[0])
				return nil
			}
			if len(args) != 1 {
				return fmt.Errorf("--all takes only the IP")
			}
			outcomes, err := c.Services.Bans.UnbanEverywhere(ctx, args[0])
			if err != nil {
				return err
			}
			return c.render(outcomes, func() {
				for _, o := range outcomes {
					if o.OK {
						c.success("%s: unbanned", o.Jail)
					} else {
						c.failure("%s: %s", o.Jail, o.Error)
					}
				}
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "unban in every active jail")
	return cmd
}

func (c *CLI) newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload [JAIL]",
		Short: "Ask the engine to reread its configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if err := c.Client.ReloadJail(cmd.Context(), args[0]); err != nil {
					return err
				}
				c.success("reloaded jail %s", args[0])
				return nil
			}
			if err := c.Client.Reread(cmd.Context()); err != nil {
				return err
			}
			c.success("configuration reloaded")
			return nil
		},
	}
}

func (c *CLI) newServiceCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "service reload|restart",
		Short:     "Reload or restart the engine through the service manager",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"reload", "restart"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			switch strings.ToLower(args[0]) {
			case "reload":
				err = c.Service.Reload(cmd.Context())
			case "restart":
				ok, askErr := c.confirm("Restart the fail2ban service? Active bans may be lost.")
				if askErr != nil || !ok {
					return askErr
				}
				err = c.Service.Restart(cmd.Context())
			default:
				return fmt.Errorf("unknown action %q, want reload or restart", args[0])
			}
			if err != nil {
				return err
			}
			c.success("service %s done", args[0])
			return nil
		},
	}
}
