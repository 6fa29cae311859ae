// Package cli implements the jailkeeper command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Wikid82/jailkeeper/internal/app"
	"github.com/Wikid82/jailkeeper/internal/config"
	"github.com/Wikid82/jailkeeper/internal/engine"
	"github.com/Wikid82/jailkeeper/internal/services"
)

// ServiceController restarts or reloads the engine's service unit.
type ServiceController interface {
	Reload(ctx context.Context) error
	Restart(ctx context.Context) error
	IsActive(ctx context.Context) bool
}

// CLI holds the dependencies shared by every command. Commands are built
// against it so tests can inject services backed by temp dirs and fakes.
type CLI struct {
	Config   config.Config
	Services *services.Services
	Client   engine.Client
	Service  ServiceController

	out       io.Writer
	output    string
	colorMode string
	assumeYes bool
	ask       func(message string, def bool) (bool, error)
	rt        *app.Runtime
}

// New returns a CLI that boots the real runtime before the first command runs.
func New() *CLI {
	return &CLI{out: os.Stdout, ask: askYesNo}
}

func askYesNo(message string, defaultAnswer bool) (bool, error) {
	var answer bool
	prompt := &survey.Confirm{
		Message: message,
		Default: defaultAnswer,
	}
	if err := survey.AskOne(prompt, &answer); err != nil {
		return defaultAnswer, err
	}
	return answer, nil
}

func (c *CLI) boot() error {
	if c.Services != nil {
		return nil
	}
	rt, err := app.Boot(os.Stderr)
	if err != nil {
		return err
	}
	c.rt = rt
	c.Config, c.Services, c.Client, c.Service = rt.Config, rt.Services, rt.Client, rt.Service
	return nil
}

// Close releases the runtime if this CLI booted one.
func (c *CLI) Close() {
	if c.rt != nil {
		c.rt.Close()
	}
}

// Execute runs the command tree against os.Args.
func (c *CLI) Execute() error {
	defer c.Close()
	return c.NewRootCommand().Execute()
}

func (c *CLI) NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "jailkeeper",
		Short:         "Manage fail2ban jails, whitelists and ban history",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch c.output {
			case "human", "json":
			default:
				return fmt.Errorf("output must be human or json, got %q", c.output)
			}
			color.NoColor = !c.wantColor()
			if cmd.Annotations["no-runtime"] == "true" {
				return nil
			}
			return c.boot()
		},
	}
	root.PersistentFlags().StringVarP(&c.output, "output", "o", "human", "output format: human or json")
	root.PersistentFlags().StringVar(&c.colorMode, "color", "auto", "colorize output: yes, no or auto")
	root.PersistentFlags().BoolVarP(&c.assumeYes, "yes", "y", false, "answer yes to every confirmation")

	root.AddCommand(
		c.newVersionCmd(),
		c.newStatusCmd(),
		c.newBanCmd(),
		c.newUnbanCmd(),
		c.newReloadCmd(),
		c.newServiceCmd(),
		c.newHistoryCmd(),
		c.newAnalyticsCmd(),
		c.newWhitelistCmd(),
		c.newIgnoreCmd(),
		c.newPermBanCmd(),
		c.newJailCmd(),
		c.newBackupCmd(),
		c.newLogsCmd(),
	)
	return root
}

func (c *CLI) wantColor() bool {
	switch c.colorMode {
	case "yes":
		return true
	case "no":
		return false
	default:
		f, ok := c.out.(*os.File)
		return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
	}
}

// confirm asks unless --yes was given.
func (c *CLI) confirm(message string) (bool, error) {
	if c.assumeYes {
		return true, nil
	}
	return c.ask(message, false)
}

func (c *CLI) jsonOutput() bool { return c.output == "json" }

func (c *CLI) printJSON(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// render prints v as JSON in json mode, otherwise calls human.
func (c *CLI) render(v interface{}, human func()) error {
	if c.jsonOutput() {
		return c.printJSON(v)
	}
	human()
	return nil
}

func (c *CLI) newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(c.out)
	style := table.StyleLight
	if c.wantColor() {
		style = table.StyleRounded
		style.Color.Header = text.Colors{text.Italic}
		style.Color.Border = text.Colors{text.FgHiBlack}
		style.Color.Separator = text.Colors{text.FgHiBlack}
	}
	style.Format.Header = text.FormatDefault
	t.SetStyle(style)
	return t
}

func (c *CLI) success(format string, args ...interface{}) {
	fmt.Fprintln(c.out, color.GreenString("✓ ")+fmt.Sprintf(format, args...))
}

func (c *CLI) warn(format string, args ...interface{}) {
	fmt.Fprintln(c.out, color.YellowString("! ")+fmt.Sprintf(format, args...))
}

func (c *CLI) failure(format string, args ...interface{}) {
	fmt.Fprintln(c.out, color.RedString("✗ ")+fmt.Sprintf(format, args...))
}

func yesNo(b bool) string {
	if b {
		return color.GreenString("yes")
	}
	return color.RedString("no")
}

// noRuntime marks commands that must work without configuration.
func noRuntime(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations["no-runtime"] = "true"
	return cmd
}
