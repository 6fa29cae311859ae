package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Wikid82/jailkeeper/internal/services"
)

func (c *CLI) newAnalyticsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "analytics",
		Aliases: []string{"stats"},
		Short:   "Rankings, trends and alerts derived from the history",
	}
	cmd.AddCommand(
		c.newSummaryCmd(),
		c.newOffendersCmd("top", "Rank every banned address", 1),
		c.newOffendersCmd("repeat", "Addresses banned at least --min times", services.DefaultRepeatMinBans),
		c.newTrendsCmd(),
		c.newAlertsCmd(),
		c.newNotifyCmd(),
	)
	return cmd
}

func (c *CLI) newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Dashboard counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sum, err := c.Services.Analytics.Summary(cmd.Context())
			if err != nil {
				return err
			}
			return c.render(sum, func() {
				t := c.newTable()
				t.AppendRows([]table.Row{
					{"Total bans", sum.TotalBans},
					{"Bans today", sum.TodayBans},
					{"Engine running", yesNo(sum.EngineRunning)},
					{"Active jails", sum.ActiveJails},
					{"Alerts", sum.AlertCount},
				})
				t.Render()
			})
		},
	}
}

func (c *CLI) newOffendersCmd(use, short string, defaultMin int64) *cobra.Command {
	var limit int
	var minBans int64
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var list []services.Offender
			var err error
			if use == "top" {
				list, err = c.Services.Analytics.TopOffenders(limit)
			} else {
				list, err = c.Services.Analytics.RepeatOffenders(minBans, limit)
			}
			if err != nil {
				return err
			}
			return c.render(list, func() {
				t := c.newTable()
				t.AppendHeader(table.Row{"IP", "Bans", "Jails", "Country", "First seen", "Last seen"})
				for _, o := range list {
					t.AppendRow(table.Row{o.IP, o.BanCount, o.Jails, o.Country,
						o.FirstSeen.Local().Format(time.DateTime), o.LastSeen.Local().Format(time.DateTime)})
				}
				t.Render()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows, 0 for all")
	if use != "top" {
		cmd.Flags().Int64Var(&minBans, "min", defaultMin, "minimum number of bans")
	}
	return cmd
}

func (c *CLI) newTrendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trends",
		Short: "Bans per jail, hour of day and recent days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := c.Services.Analytics.Trends()
			if err != nil {
				return err
			}
			return c.render(stats, func() {
				fmt.Fprintf(c.out, "%d bans, %d unbans\n", stats.Total, stats.Unbans)

				jails := make([]string, 0, len(stats.ByJail))
				for j := range stats.ByJail {
					jails = append(jails, j)
				}
				sort.Slice(jails, func(a, b int) bool { return stats.ByJail[jails[a]] > stats.ByJail[jails[b]] })
				t := c.newTable()
				t.AppendHeader(table.Row{"Jail", "Bans"})
				for _, j := range jails {
					t.AppendRow(table.Row{j, stats.ByJail[j]})
				}
				t.Render()

				days := c.newTable()
				days.AppendHeader(table.Row{"Day", "Bans", ""})
				var peak int64
				for _, d := range stats.ByDay {
					if d.Count > peak {
						peak = d.Count
					}
				}
				for _, d := range stats.ByDay {
					days.AppendRow(table.Row{d.Day, d.Count, bar(d.Count, peak, 30)})
				}
				days.Render()
			})
		},
	}
}

func bar(n, peak int64, width int) string {
	if peak == 0 || n == 0 {
		return ""
	}
	size := int(n * int64(width) / peak)
	if size == 0 {
		size = 1
	}
	return strings.Repeat("█", size)
}

func (c *CLI) printAlerts(alerts []services.Alert) {
	if len(alerts) == 0 {
		c.success("no alerts")
		return
	}
	for _, a := range alerts {
		sev := color.YellowString(a.Severity)
		if a.Severity == "critical" {
			sev = color.RedString(a.Severity)
		}
		fmt.Fprintf(c.out, "[%s] %s: %s\n", sev, a.Kind, a.Message)
	}
}

func (c *CLI) newAlertsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "alerts",
		Short: "Evaluate the alert rules now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			alerts, err := c.Services.Analytics.Alerts(cmd.Context())
			if err != nil {
				return err
			}
			return c.render(alerts, func() { c.printAlerts(alerts) })
		},
	}
}

func (c *CLI) newNotifyCmd() *cobra.Command {
	var test bool
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send the current alerts to the configured notification URLs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				alerts []services.Alert
				res    services.NotifyResult
				err    error
			)
			if test {
				res, err = c.Services.Notifications.SendTest()
			} else {
				alerts, res, err = c.Services.Notifications.NotifyAlerts(cmd.Context())
			}
			if err != nil {
				return err
			}
			view := map[string]interface{}{"alerts": alerts, "result": res}
			return c.render(view, func() {
				if !test {
					c.printAlerts(alerts)
				}
				c.success("%d notifications sent", res.Sent)
				for url, msg := range res.Errors {
					c.failure("%s: %s", url, msg)
				}
			})
		},
	}
	cmd.Flags().BoolVar(&test, "test", false, "send a test message instead of the alerts")
	return cmd
}
