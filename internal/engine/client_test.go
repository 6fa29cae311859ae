package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/jailkeeper/internal/apperr"
)

// scriptedRunner returns canned output keyed by the joined argument list.
type scriptedRunner struct {
	outputs map[string]string
	fail    map[string]bool
	calls   [][]string
}

func (r *scriptedRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	key := strings.Join(args, " ")
	if r.fail[key] {
		return []byte("ERROR  NOK"), errors.New("exit status 255")
	}
	return []byte(r.outputs[key]), nil
}

const globalStatus = `Status
|- Number of jail:	2
` + "`" + `- Jail list:	sshd, nginx-404
`

const sshdStatus = `Status for the jail: sshd
|- Filter
|  |- Currently failed:	1
|  |- Total failed:	12
|  ` + "`" + `- File list:	/var/log/auth.log
` + "`" + `- Actions
   |- Currently banned:	2
   |- Total banned:	7
   ` + "`" + `- Banned IP list:	1.2.3.4 5.6.7.8
`

func TestParseJailList(t *testing.T) {
	assert.Equal(t, []string{"sshd", "nginx-404"}, ParseJailList(globalStatus))
	assert.Nil(t, ParseJailList("Status\n|- Number of jail: 0\n`- Jail list:\n"))
	assert.Nil(t, ParseJailList("garbage"))
}

func TestParseJailStatus(t *testing.T) {
	st := ParseJailStatus(sshdStatus)
	assert.Equal(t, 1, st.CurrentlyFailed)
	assert.Equal(t, 12, st.TotalFailed)
	assert.Equal(t, 2, st.CurrentlyBanned)
	assert.Equal(t, 7, st.TotalBanned)
	assert.Equal(t, []string{"1.2.3.4", "5.6.7.8"}, st.BannedIPs)
	assert.Equal(t, []string{"/var/log/auth.log"}, st.FileList)

	empty := ParseJailStatus("")
	assert.NotNil(t, empty.BannedIPs)
}

func TestFail2banClient_Verbs(t *testing.T) {
	r := &scriptedRunner{outputs: map[string]string{
		"ping":        "Server replied: pong",
		"status":      globalStatus,
		"status sshd": sshdStatus,
	}}
	c := NewFail2banClient(r, "")
	ctx := context.Background()

	ok, err := c.Ping(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	jails, err := c.ActiveJails(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"sshd", "nginx-404"}, jails)

	st, err := c.JailStatus(ctx, "sshd")
	require.NoError(t, err)
	assert.Equal(t, "sshd", st.Name)
	assert.Equal(t, 2, st.CurrentlyBanned)

	require.NoError(t, c.Ban(ctx, "sshd", "9.9.9.9"))
	require.NoError(t, c.Unban(ctx, "sshd", "9.9.9.9"))
	require.NoError(t, c.Reread(ctx))
	require.NoError(t, c.ReloadJail(ctx, "sshd"))

	assert.Equal(t, []string{"fail2ban-client", "set", "sshd", "banip", "9.9.9.9"}, r.calls[3])
	assert.Equal(t, []string{"fail2ban-client", "set", "sshd", "unbanip", "9.9.9.9"}, r.calls[4])
	assert.Equal(t, []string{"fail2ban-client", "reload"}, r.calls[5])
	assert.Equal(t, []string{"fail2ban-client", "reload", "sshd"}, r.calls[6])
}

func TestFail2banClient_Failures(t *testing.T) {
	r := &scriptedRunner{fail: map[string]bool{"ping": true, "status": true, "set sshd banip 1.1.1.1": true}}
	c := NewFail2banClient(r, "/usr/bin/fail2ban-client")
	ctx := context.Background()

	ok, err := c.Ping(ctx)
	assert.NoError(t, err)
	assert.False(t, ok)

	_, err = c.ActiveJails(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrExternalCommand)

	err = c.Ban(ctx, "sshd", "1.1.1.1")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrExternalCommand)
	assert.Contains(t, err.Error(), "/usr/bin/fail2ban-client set sshd banip 1.1.1.1")
	assert.Contains(t, err.Error(), "NOK")
}

func TestServiceControl(t *testing.T) {
	r := &scriptedRunner{outputs: map[string]string{"is-active fail2ban": "active\n"}}
	s := NewServiceControl(r, "", "")
	ctx := context.Background()

	require.NoError(t, s.Reload(ctx))
	require.NoError(t, s.Restart(ctx))
	assert.True(t, s.IsActive(ctx))
	assert.Equal(t, []string{"systemctl", "reload", "fail2ban"}, r.calls[0])
	assert.Equal(t, []string{"systemctl", "restart", "fail2ban"}, r.calls[1])

	r.fail = map[string]bool{"is-active fail2ban": true}
	assert.False(t, s.IsActive(ctx))
}

func TestExecRunner(t *testing.T) {
	tmp := t.TempDir()
	script := filepath.Join(tmp, "fake-client.sh")
	content := `#!/bin/sh
if [ "$1" = "ping" ]; then echo "Server replied: pong"; exit 0; fi
echo "unknown command" >&2
exit 255
`
	require.NoError(t, os.WriteFile(script, []byte(content), 0o755))

	r := NewExecRunner()
	out, err := r.Run(context.Background(), script, "ping")
	require.NoError(t, err)
	assert.Contains(t, string(out), "pong")

	out, err = r.Run(context.Background(), script, "status")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrExternalCommand)
	assert.Contains(t, string(out), "unknown command")

	_, err = r.Run(context.Background(), "/nonexistent/binary")
	assert.Error(t, err)
}
