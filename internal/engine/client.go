// Package engine talks to the running fail2ban daemon through its command
// line control interface. Nothing else in the module executes the engine.
package engine

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/Wikid82/jailkeeper/internal/apperr"
	"github.com/Wikid82/jailkeeper/internal/metrics"
	"github.com/Wikid82/jailkeeper/internal/models"
)

// Client abstracts the enforcement engine so services can be tested without it.
type Client interface {
	Ping(ctx context.Context) (bool, error)
	ActiveJails(ctx context.Context) ([]string, error)
	JailStatus(ctx context.Context, jail string) (models.JailStatus, error)
	Ban(ctx context.Context, jail, ip string) error
	Unban(ctx context.Context, jail, ip string) error
	Reread(ctx context.Context) error
	ReloadJail(ctx context.Context, jail string) error
}

// Fail2banClient implements Client on top of the fail2ban-client binary.
type Fail2banClient struct {
	runner Runner
	binary string
}

// NewFail2banClient returns a client invoking binary through runner.
func NewFail2banClient(runner Runner, binary string) *Fail2banClient {
	if binary == "" {
		binary = "fail2ban-client"
	}
	return &Fail2banClient{runner: runner, binary: binary}
}

func (c *Fail2banClient) run(ctx context.Context, verb string, args ...string) (string, error) {
	out, err := c.runner.Run(ctx, c.binary, args...)
	metrics.ObserveEngineCommand(verb, err)
	if err != nil {
		var ce *apperr.CommandError
		if errors.As(err, &ce) {
			return string(out), err
		}
		return string(out), &apperr.CommandError{Args: append([]string{c.binary}, args...), Output: string(out), Err: err}
	}
	return string(out), nil
}

// Ping reports whether the daemon answers. A failed invocation means the
// daemon is not running and is not treated as an error.
func (c *Fail2banClient) Ping(ctx context.Context) (bool, error) {
	out, err := c.run(ctx, "ping", "ping")
	if err != nil {
		return false, nil
	}
	return strings.Contains(strings.ToLower(out), "pong"), nil
}

// ActiveJails returns the jail list reported by the global status.
func (c *Fail2banClient) ActiveJails(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, "status", "status")
	if err != nil {
		return nil, err
	}
	return ParseJailList(out), nil
}

// JailStatus returns counters and banned addresses for jail.
func (c *Fail2banClient) JailStatus(ctx context.Context, jail string) (models.JailStatus, error) {
	out, err := c.run(ctx, "status", "status", jail)
	if err != nil {
		return models.JailStatus{}, err
	}
	st := ParseJailStatus(out)
	st.Name = jail
	return st, nil
}

// Ban issues "set <jail> banip <ip>".
func (c *Fail2banClient) Ban(ctx context.Context, jail, ip string) error {
	_, err := c.run(ctx, "banip", "set", jail, "banip", ip)
	return err
}

// Unban issues "set <jail> unbanip <ip>".
func (c *Fail2banClient) Unban(ctx context.Context, jail, ip string) error {
	_, err := c.run(ctx, "unbanip", "set", jail, "unbanip", ip)
	return err
}

// Reread makes the daemon re-read its configuration.
func (c *Fail2banClient) Reread(ctx context.Context) error {
	_, err := c.run(ctx, "reload", "reload")
	return err
}

// ReloadJail reloads a single jail.
func (c *Fail2banClient) ReloadJail(ctx context.Context, jail string) error {
	_, err := c.run(ctx, "reload", "reload", jail)
	return err
}

// ParseJailList extracts the names from the "Jail list:" line of
// "fail2ban-client status".
func ParseJailList(out string) []string {
	for _, line := range strings.Split(out, "\n") {
		_, rest, ok := strings.Cut(line, "Jail list:")
		if !ok {
			continue
		}
		var jails []string
		for _, j := range strings.Split(rest, ",") {
			if j = strings.TrimSpace(j); j != "" {
				jails = append(jails, j)
			}
		}
		return jails
	}
	return nil
}

// ParseJailStatus reads the tree printed by "fail2ban-client status <jail>".
func ParseJailStatus(out string) models.JailStatus {
	var st models.JailStatus
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimLeft(strings.TrimSpace(key), "|`- ")
		value = strings.TrimSpace(value)
		switch key {
		case "Currently failed":
			st.CurrentlyFailed, _ = strconv.Atoi(value)
		case "Total failed":
			st.TotalFailed, _ = strconv.Atoi(value)
		case "Currently banned":
			st.CurrentlyBanned, _ = strconv.Atoi(value)
		case "Total banned":
			st.TotalBanned, _ = strconv.Atoi(value)
		case "Banned IP list":
			st.BannedIPs = strings.Fields(value)
		case "File list":
			st.FileList = strings.Fields(value)
		}
	}
	if st.BannedIPs == nil {
		st.BannedIPs = []string{}
	}
	return st
}
