package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Wikid82/jailkeeper/internal/apperr"
	"github.com/Wikid82/jailkeeper/internal/models"
)

// FakeClient is an in-memory Client used by tests and the seed tool.
type FakeClient struct {
	mu       sync.Mutex
	Running  bool
	Jails    []string
	Banned   map[string][]string
	FailOn   map[string]bool // "jail|ip" pairs whose Ban/Unban fails
	Calls    []string
	Rereads  int
	Reloaded []string
}

// NewFakeClient returns a running fake with the given active jails.
func NewFakeClient(jails ...string) *FakeClient {
	return &FakeClient{
		Running: true,
		Jails:   jails,
		Banned:  map[string][]string{},
		FailOn:  map[string]bool{},
	}
}

func (f *FakeClient) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, call)
}

func (f *FakeClient) notRunning(args ...string) error {
	return &apperr.CommandError{Args: append([]string{"fail2ban-client"}, args...), Err: fmt.Errorf("daemon not running")}
}

func (f *FakeClient) Ping(ctx context.Context) (bool, error) {
	f.record("ping")
	return f.Running, nil
}

func (f *FakeClient) ActiveJails(ctx context.Context) ([]string, error) {
	f.record("status")
	if !f.Running {
		return nil, f.notRunning("status")
	}
	return append([]string(nil), f.Jails...), nil
}

func (f *FakeClient) hasJail(jail string) bool {
	for _, j := range f.Jails {
		if j == jail {
			return true
		}
	}
	return false
}

func (f *FakeClient) JailStatus(ctx context.Context, jail string) (models.JailStatus, error) {
	f.record("status " + jail)
	if !f.Running || !f.hasJail(jail) {
		return models.JailStatus{}, f.notRunning("status", jail)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ips := append([]string{}, f.Banned[jail]...)
	return models.JailStatus{Name: jail, CurrentlyBanned: len(ips), TotalBanned: len(ips), BannedIPs: ips}, nil
}

func (f *FakeClient) Ban(ctx context.Context, jail, ip string) error {
	f.record("set " + jail + " banip " + ip)
	if !f.Running || !f.hasJail(jail) || f.FailOn[jail+"|"+ip] {
		return f.notRunning("set", jail, "banip", ip)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Banned[jail] = append(f.Banned[jail], ip)
	return nil
}

func (f *FakeClient) Unban(ctx context.Context, jail, ip string) error {
	f.record("set " + jail + " unbanip " + ip)
	if !f.Running || !f.hasJail(jail) || f.FailOn[jail+"|"+ip] {
		return f.notRunning("set", jail, "unbanip", ip)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.Banned[jail][:0]
	found := false
	for _, b := range f.Banned[jail] {
		if b == ip {
			found = true
			continue
		}
		kept = append(kept, b)
	}
	f.Banned[jail] = kept
	if !found {
		return &apperr.CommandError{Args: []string{"fail2ban-client", "set", jail, "unbanip", ip}, Err: fmt.Errorf("%s is not banned", ip)}
	}
	return nil
}

func (f *FakeClient) Reread(ctx context.Context) error {
	f.record("reload")
	if !f.Running {
		return f.notRunning("reload")
	}
	f.Rereads++
	return nil
}

func (f *FakeClient) ReloadJail(ctx context.Context, jail string) error {
	f.record("reload " + jail)
	if !f.Running {
		return f.notRunning("reload", jail)
	}
	f.Reloaded = append(f.Reloaded, jail)
	return nil
}

// CallsWithPrefix returns recorded calls starting with prefix.
func (f *FakeClient) CallsWithPrefix(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.Calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}
