package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Wikid82/jailkeeper/internal/models"
)

func (c *CLI) newWhitelistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "whitelist",
		Aliases: []string{"wl"},
		Short:   "Manage addresses that must never be banned",
		Long: `Manage the whitelist declarations. Changes are stored only; run
"jailkeeper ignore apply" to push them into the engine's ignoreip directive.`,
	}
	cmd.AddCommand(
		c.newWhitelistShowCmd(),
		c.newWhitelistAddCmd(),
		c.newWhitelistRemoveCmd(),
		c.newWhitelistCheckCmd(),
		c.newWhitelistGroupCmd(),
		c.newTrustedCmd(),
	)
	return cmd
}

func (c *CLI) appendScope(t table.Writer, scope string, s models.WhitelistScope) {
	for _, e := range append(append([]models.WhitelistEntry{}, s.IPs...), s.CIDRs...) {
		added := ""
		if !e.AddedAt.IsZero() {
			added = e.AddedAt.Local().Format(time.DateTime)
		}
		t.AppendRow(table.Row{scope, e.Value, e.Description, added})
	}
	for _, g := range s.Groups {
		t.AppendRow(table.Row{scope, "@" + g, "group", ""})
	}
}

func (c *CLI) newWhitelistShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show every whitelist scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := c.Services.Whitelist.Load()
			if err != nil {
				return err
			}
			return c.render(f, func() {
				t := c.newTable()
				t.AppendHeader(table.Row{"Scope", "Value", "Description", "Added"})
				c.appendScope(t, "global", f.Global)
				jails := make([]string, 0, len(f.Jails))
				for j := range f.Jails {
					jails = append(jails, j)
				}
				sort.Strings(jails)
				for _, j := range jails {
					c.appendScope(t, "jail:"+j, f.Jails[j])
				}
				t.Render()

				if len(f.Groups) == 0 {
					return
				}
				groups := c.newTable()
				groups.AppendHeader(table.Row{"Group", "Entries", "Description"})
				names := make([]string, 0, len(f.Groups))
				for n := range f.Groups {
					names = append(names, n)
				}
				sort.Strings(names)
				for _, n := range names {
					g := f.Groups[n]
					values := make([]string, 0, len(g.Entries))
					for _, e := range g.Entries {
						values = append(values, e.Value)
					}
					groups.AppendRow(table.Row{n, strings.Join(values, "\n"), g.Description})
				}
				groups.Render()
			})
		},
	}
}

type whitelistTarget struct {
	jail, group string
}

func (w *whitelistTarget) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&w.jail, "jail", "", "jail-specific whitelist instead of the global one")
	cmd.Flags().StringVar(&w.group, "group", "", "IP group instead of the global whitelist")
	cmd.MarkFlagsMutuallyExclusive("jail", "group")
}

func (w *whitelistTarget) String() string {
	switch {
	case w.jail != "":
		return "jail " + w.jail
	case w.group != "":
		return "group " + w.group
	default:
		return "global whitelist"
	}
}

func (c *CLI) newWhitelistAddCmd() *cobra.Command {
	var target whitelistTarget
	var description string
	cmd := &cobra.Command{
		Use:   "add IP|CIDR",
		Short: "Add an address or network",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wl := c.Services.Whitelist
			var err error
			switch {
			case target.jail != "":
				err = wl.AddJailEntry(target.jail, args[0], description)
			case target.group != "":
				err = wl.AddGroupEntry(target.group, args[0], description)
			default:
				err = wl.AddGlobal(args[0], description)
			}
			if err != nil {
				return err
			}
			c.success("%s added to %s", args[0], target.String())
			return nil
		},
	}
	target.bind(cmd)
	cmd.Flags().StringVarP(&description, "description", "d", "", "free-form note")
	return cmd
}

func (c *CLI) newWhitelistRemoveCmd() *cobra.Command {
	var target whitelistTarget
	cmd := &cobra.Command{
		Use:     "remove IP|CIDR",
		Aliases: []string{"rm"},
		Short:   "Remove an address or network",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wl := c.Services.Whitelist
			var err error
			switch {
			case target.jail != "":
				err = wl.RemoveJailEntry(target.jail, args[0])
			case target.group != "":
				err = wl.RemoveGroupEntry(target.group, args[0])
			default:
				err = wl.RemoveGlobal(args[0])
			}
			if err != nil {
				return err
			}
			c.success("%s removed from %s", args[0], target.String())
			return nil
		},
	}
	target.bind(cmd)
	return cmd
}

func (c *CLI) newWhitelistCheckCmd() *cobra.Command {
	var jail string
	cmd := &cobra.Command{
		Use:   "check IP",
		Short: "Tell whether an address is whitelisted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.Services.Whitelist.IsWhitelisted(args[0], jail)
			if err != nil {
				return err
			}
			return c.render(m, func() {
				if m.Whitelisted {
					c.success("%s is whitelisted by %s (%s)", args[0], m.Value, m.Scope)
				} else {
					c.warn("%s is not whitelisted", args[0])
				}
			})
		},
	}
	cmd.Flags().StringVar(&jail, "jail", "", "also consult this jail's whitelist")
	return cmd
}

func (c *CLI) newWhitelistGroupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage named IP groups",
	}
	var description string
	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create an empty group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.Services.Whitelist.CreateGroup(args[0], description); err != nil {
				return err
			}
			c.success("group %s created", args[0])
			return nil
		},
	}
	create.Flags().StringVarP(&description, "description", "d", "", "free-form note")

	groupAction := func(use, short, done string, fn func(string) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " NAME",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := fn(args[0]); err != nil {
					return err
				}
				c.success("group %s %s", args[0], done)
				return nil
			},
		}
	}
	cmd.AddCommand(
		create,
		groupAction("delete", "Delete a group and every reference to it", "deleted", func(name string) error {
			return c.Services.Whitelist.DeleteGroup(name)
		}),
		groupAction("attach", "Attach a group to the global whitelist", "attached", func(name string) error {
			return c.Services.Whitelist.AttachGroup(name)
		}),
		groupAction("detach", "Detach a group from the global whitelist", "detached", func(name string) error {
			return c.Services.Whitelist.DetachGroup(name)
		}),
	)
	return cmd
}

func (c *CLI) newTrustedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trusted",
		Short: "Manage remote trusted-source feeds",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List the trusted sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sources, err := c.Services.Whitelist.TrustedSources()
			if err != nil {
				return err
			}
			return c.render(sources, func() {
				t := c.newTable()
				t.AppendHeader(table.Row{"Key", "Name", "Enabled", "Entries", "Last update"})
				for _, s := range sources {
					updated := "never"
					if s.LastUpdate != nil {
						updated = s.LastUpdate.Local().Format(time.DateTime)
					}
					t.AppendRow(table.Row{s.Key, s.Name, yesNo(s.Enabled), len(s.Entries), updated})
				}
				t.Render()
			})
		},
	}
	toggle := func(enabled bool) *cobra.Command {
		use, done := "disable", "disabled"
		if enabled {
			use, done = "enable", "enabled"
		}
		return &cobra.Command{
			Use:   use + " KEY",
			Short: strings.ToUpper(use[:1]) + use[1:] + " a trusted source",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := c.Services.Whitelist.SetTrustedSourceEnabled(args[0], enabled); err != nil {
					return err
				}
				c.success("%s %s", args[0], done)
				return nil
			},
		}
	}
	refresh := &cobra.Command{
		Use:   "refresh [KEY]",
		Short: "Fetch one feed, or every enabled feed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				src, err := c.Services.Whitelist.RefreshTrustedSource(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return c.render(src, func() {
					c.success("%s: %d entries", src.Key, len(src.Entries))
				})
			}
			errs := c.Services.Whitelist.RefreshEnabled(cmd.Context())
			for key, err := range errs {
				c.failure("%s: %s", key, err)
			}
			if len(errs) > 0 {
				return fmt.Errorf("%d feed(s) failed", len(errs))
			}
			c.success("enabled feeds refreshed")
			return nil
		},
	}
	cmd.AddCommand(list, toggle(true), toggle(false), refresh)
	return cmd
}
