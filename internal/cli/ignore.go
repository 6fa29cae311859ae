package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Wikid82/jailkeeper/internal/services"
)

func (c *CLI) newIgnoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ignore",
		Short: "Sync the whitelist into the engine's ignoreip directive",
	}
	cmd.AddCommand(c.newIgnorePreviewCmd(), c.newIgnoreApplyCmd())
	return cmd
}

// printDiff colours a unified diff line by line.
func (c *CLI) printDiff(diff string) {
	for _, line := range strings.SplitAfter(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			fmt.Fprint(c.out, color.New(color.Bold).Sprint(line))
		case strings.HasPrefix(line, "+"):
			fmt.Fprint(c.out, color.GreenString("%s", line))
		case strings.HasPrefix(line, "-"):
			fmt.Fprint(c.out, color.RedString("%s", line))
		case strings.HasPrefix(line, "@@"):
			fmt.Fprint(c.out, color.CyanString("%s", line))
		default:
			fmt.Fprint(c.out, line)
		}
	}
}

func (c *CLI) newIgnorePreviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preview",
		Short: "Show the global ignoreip entries and the pending change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := c.Services.Ignore.GlobalSet()
			if err != nil {
				return err
			}
			diff, err := c.Services.Ignore.Preview()
			if err != nil {
				return err
			}
			view := map[string]interface{}{"entries": entries, "diff": diff, "up_to_date": diff == ""}
			return c.render(view, func() {
				fmt.Fprintf(c.out, "ignoreip = %s\n", strings.Join(entries, " "))
				if diff == "" {
					c.success("jail.local is up to date")
					return
				}
				c.printDiff(diff)
			})
		},
	}
}

func (c *CLI) newIgnoreApplyCmd() *cobra.Command {
	var jail string
	var reload bool
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Write the ignoreip directive, globally or for one jail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				res services.IgnoreDirectiveResult
				err error
			)
			if jail != "" {
				res, err = c.Services.Ignore.RegenerateForJail(jail)
			} else {
				res, err = c.Services.Ignore.Regenerate()
			}
			if err != nil {
				return err
			}
			if res.Changed && reload {
				if jail != "" {
					err = c.Client.ReloadJail(cmd.Context(), jail)
				} else {
					err = c.Client.Reread(cmd.Context())
				}
				if err != nil {
					return fmt.Errorf("directive written but reload failed: %w", err)
				}
			}
			return c.render(res, func() {
				if !res.Changed {
					c.success("[%s] in %s already up to date", res.Section, res.Path)
					return
				}
				c.success("[%s] in %s updated with %d entries", res.Section, res.Path, len(res.Entries))
				if res.Backup != "" {
					fmt.Fprintf(c.out, "  backup: %s\n", res.Backup)
				}
				if !reload {
					c.warn("run \"jailkeeper reload\" for the engine to pick it up")
				}
			})
		},
	}
	cmd.Flags().StringVar(&jail, "jail", "", "write only this jail's directive")
	cmd.Flags().BoolVar(&reload, "reload", false, "reload the engine when the file changed")
	return cmd
}
