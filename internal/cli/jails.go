package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Wikid82/jailkeeper/internal/apperr"
	"github.com/Wikid82/jailkeeper/internal/models"
	"github.com/Wikid82/jailkeeper/internal/services"
)

func (c *CLI) newJailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "jail",
		Aliases: []string{"jails"},
		Short:   "Create, edit and delete jail.d and filter.d files",
		Long: `Create, edit and delete the jail.d and filter.d files managed by jailkeeper.
Files are written only; run "jailkeeper reload" afterwards.`,
	}
	cmd.AddCommand(
		c.newJailListCmd(),
		c.newJailShowCmd(),
		c.newJailTemplatesCmd(),
		c.newJailCreateCmd(),
		c.newJailCustomCmd(),
		c.newJailToggleCmd(true),
		c.newJailToggleCmd(false),
		c.newJailEditCmd(),
		c.newJailDeleteCmd(),
	)
	return cmd
}

func (c *CLI) jailTable(jails ...models.JailDefinition) {
	t := c.newTable()
	t.AppendHeader(table.Row{"Name", "Enabled", "Port", "Filter", "Log path", "Max retry", "Find time", "Ban time"})
	for _, j := range jails {
		t.AppendRow(table.Row{j.Name, yesNo(j.Enabled), j.Port, j.Filter, j.LogPath, j.MaxRetry, j.FindTime, j.BanTime})
	}
	t.Render()
}

func (c *CLI) newJailListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the jail.d files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			jails, err := c.Services.Jails.List()
			if err != nil {
				return err
			}
			return c.render(jails, func() { c.jailTable(jails...) })
		},
	}
}

func (c *CLI) newJailShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Show a jail and its filter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jail, err := c.Services.Jails.Get(args[0])
			if err != nil {
				return err
			}
			filter, ferr := c.Services.Jails.GetFilter(jail.Filter)
			if ferr != nil && !errors.Is(ferr, apperr.ErrNotFound) {
				return ferr
			}
			view := map[string]interface{}{"jail": jail}
			if ferr == nil {
				view["filter"] = filter
			}
			return c.render(view, func() {
				c.jailTable(jail)
				if ferr != nil {
					c.warn("filter %s is not managed here", jail.Filter)
					return
				}
				for _, re := range filter.FailRegex {
					fmt.Fprintf(c.out, "failregex: %s\n", re)
				}
				if filter.IgnoreRegex != "" {
					fmt.Fprintf(c.out, "ignoreregex: %s\n", filter.IgnoreRegex)
				}
			})
		},
	}
}

func (c *CLI) newJailTemplatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List the built-in jail templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			groups := c.Services.Jails.Templates()
			return c.render(groups, func() {
				cats := make([]string, 0, len(groups))
				for cat := range groups {
					cats = append(cats, cat)
				}
				sort.Strings(cats)
				t := c.newTable()
				t.AppendHeader(table.Row{"Category", "ID", "Name", "Description"})
				for _, cat := range cats {
					for _, tmpl := range groups[cat] {
						t.AppendRow(table.Row{cat, tmpl.ID, tmpl.Name, tmpl.Description})
					}
				}
				t.Render()
			})
		},
	}
}

// withOverwrite runs create, and on a name collision asks before running it
// again with overwrite set.
func (c *CLI) withOverwrite(name string, overwrite bool, create func(overwrite bool) (models.JailDefinition, error)) (models.JailDefinition, error) {
	jail, err := create(overwrite)
	if err == nil || overwrite || !errors.Is(err, apperr.ErrConflict) {
		return jail, err
	}
	ok, askErr := c.confirm(fmt.Sprintf("Jail %s already exists. Overwrite it?", name))
	if askErr != nil {
		return jail, askErr
	}
	if !ok {
		return jail, err
	}
	return create(true)
}

func (c *CLI) newJailCreateCmd() *cobra.Command {
	var name string
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "create TEMPLATE",
		Short: "Create a jail and filter from a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := name
			if target == "" {
				target = args[0]
			}
			jail, err := c.withOverwrite(target, overwrite, func(ow bool) (models.JailDefinition, error) {
				return c.Services.Jails.CreateFromTemplate(args[0], name, ow)
			})
			if err != nil {
				return err
			}
			return c.render(jail, func() { c.success("jail %s created from %s", jail.Name, args[0]) })
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "jail name, defaults to the template id")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing jail without asking")
	return cmd
}

func (c *CLI) newJailCustomCmd() *cobra.Command {
	var req services.CustomJailRequest
	var disabled bool
	cmd := &cobra.Command{
		Use:   "custom NAME",
		Short: "Create a jail and filter from explicit parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Name = args[0]
			req.Enabled = !disabled
			jail, err := c.withOverwrite(req.Name, req.Overwrite, func(ow bool) (models.JailDefinition, error) {
				r := req
				r.Overwrite = ow
				return c.Services.Jails.CreateCustom(r)
			})
			if err != nil {
				return err
			}
			return c.render(jail, func() { c.success("jail %s created", jail.Name) })
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.LogPath, "logpath", "", "log file the jail watches")
	f.StringArrayVar(&req.FailRegex, "failregex", nil, "failure pattern containing <HOST>, repeatable")
	f.StringVar(&req.IgnoreRegex, "ignoreregex", "", "pattern for lines to ignore")
	f.StringVar(&req.DatePattern, "datepattern", "", "custom date pattern")
	f.StringVar(&req.Description, "description", "", "free-form note")
	f.StringVar(&req.Port, "port", "", "ports, e.g. ssh or 80,443")
	f.IntVar(&req.MaxRetry, "maxretry", 5, "failures before a ban")
	f.StringVar(&req.FindTime, "findtime", "10m", "failure window")
	f.StringVar(&req.BanTime, "bantime", "1h", "ban duration")
	f.StringVar(&req.Backend, "backend", "", "log backend")
	f.BoolVar(&disabled, "disabled", false, "write the jail disabled")
	f.BoolVar(&req.Overwrite, "overwrite", false, "replace an existing jail without asking")
	_ = cmd.MarkFlagRequired("logpath")
	_ = cmd.MarkFlagRequired("failregex")
	return cmd
}

func (c *CLI) newJailToggleCmd(enabled bool) *cobra.Command {
	use := "disable"
	if enabled {
		use = "enable"
	}
	return &cobra.Command{
		Use:   use + " NAME",
		Short: fmt.Sprintf("Set enabled = %t in a jail file", enabled),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			changed, err := c.Services.Jails.SetEnabled(args[0], enabled)
			if err != nil {
				return err
			}
			if !changed {
				c.warn("jail %s unchanged", args[0])
				return nil
			}
			c.success("jail %s %sd", args[0], use)
			return nil
		},
	}
}

func (c *CLI) newJailEditCmd() *cobra.Command {
	var (
		maxRetry          int
		findTime, banTime string
	)
	cmd := &cobra.Command{
		Use:   "edit NAME",
		Short: "Change maxretry, findtime or bantime",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p services.JailParams
			if cmd.Flags().Changed("maxretry") {
				p.MaxRetry = &maxRetry
			}
			if cmd.Flags().Changed("findtime") {
				p.FindTime = &findTime
			}
			if cmd.Flags().Changed("bantime") {
				p.BanTime = &banTime
			}
			if err := c.Services.Jails.EditParameters(args[0], p); err != nil {
				return err
			}
			jail, err := c.Services.Jails.Get(args[0])
			if err != nil {
				return err
			}
			return c.render(jail, func() { c.jailTable(jail) })
		},
	}
	cmd.Flags().IntVar(&maxRetry, "maxretry", 0, "failures before a ban")
	cmd.Flags().StringVar(&findTime, "findtime", "", "failure window")
	cmd.Flags().StringVar(&banTime, "bantime", "", "ban duration")
	return cmd
}

func (c *CLI) newJailDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete NAME",
		Aliases: []string{"rm"},
		Short:   "Delete a jail and its filter",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := c.confirm(fmt.Sprintf("Delete jail %s and its filter?", args[0]))
			if err != nil || !ok {
				return err
			}
			res, err := c.Services.Jails.Delete(args[0])
			if err != nil {
				return err
			}
			return c.render(res, func() {
				c.success("jail %s deleted", res.Jail)
				if res.FilterError != "" {
					c.warn("filter left in place: %s", res.FilterError)
				}
			})
		},
	}
}
