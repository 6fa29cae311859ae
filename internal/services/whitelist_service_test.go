package services

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/jailkeeper/internal/apperr"
	"github.com/Wikid82/jailkeeper/internal/models"
)

func newTestWhitelistService(t *testing.T) *WhitelistService {
	t.Helper()
	svc := NewWhitelistService(filepath.Join(t.TempDir(), "whitelist.json"))
	svc.now = func() time.Time { return time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC) }
	return svc
}

func TestWhitelistService_LoadMissingFile(t *testing.T) {
	svc := newTestWhitelistService(t)
	f, err := svc.Load()
	require.NoError(t, err)
	assert.Empty(t, f.Global.IPs)
	assert.NotNil(t, f.Groups)
	assert.Len(t, f.TrustedSources, len(DefaultTrustedSources))
	for _, src := range f.TrustedSources {
		assert.False(t, src.Enabled)
	}
}

func TestWhitelistService_LoadMixedEntryShapes(t *testing.T) {
	svc := newTestWhitelistService(t)
	doc := `{
  "global": {
    "ips": ["10.0.0.5", {"value": "10.0.0.6", "description": "office", "added_at": "2024-01-01T00:00:00Z"}],
    "cidrs": ["192.168.0.0/16"]
  }
}`
	require.NoError(t, os.WriteFile(svc.path, []byte(doc), 0o644))

	f, err := svc.Load()
	require.NoError(t, err)
	require.Len(t, f.Global.IPs, 2)
	assert.False(t, f.Global.IPs[0].IsAnnotated())
	assert.True(t, f.Global.IPs[1].IsAnnotated())
	assert.Equal(t, "office", f.Global.IPs[1].Description)
	assert.Equal(t, []string{"10.0.0.5", "10.0.0.6", "192.168.0.0/16"}, f.Global.Values())
}

func TestWhitelistService_LoadCorruptFile(t *testing.T) {
	svc := newTestWhitelistService(t)
	require.NoError(t, os.WriteFile(svc.path, []byte("{not json"), 0o644))
	_, err := svc.Load()
	assert.ErrorIs(t, err, apperr.ErrStorage)
}

func TestWhitelistService_GlobalIPs(t *testing.T) {
	svc := newTestWhitelistService(t)

	require.NoError(t, svc.AddGlobalIP("10.0.0.5", ""))
	require.NoError(t, svc.AddGlobalIP(" 10.0.0.6 ", "backup host"))
	assert.ErrorIs(t, svc.AddGlobalIP("10.0.0.5", ""), apperr.ErrValidation)
	assert.ErrorIs(t, svc.AddGlobalIP("256.1.1.1", ""), apperr.ErrValidation)
	assert.ErrorIs(t, svc.AddGlobalIP("10.0.0.0/8", ""), apperr.ErrValidation)

	f, err := svc.Load()
	require.NoError(t, err)
	require.Len(t, f.Global.IPs, 2)
	assert.Equal(t, "10.0.0.6", f.Global.IPs[1].Value)
	assert.True(t, f.Global.IPs[1].IsAnnotated())

	require.NoError(t, svc.RemoveGlobalIP("10.0.0.5"))
	assert.ErrorIs(t, svc.RemoveGlobalIP("10.0.0.5"), apperr.ErrNotFound)

	f, err = svc.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.6"}, f.Global.Values())
}

func TestWhitelistService_RejectedMutationLeavesFileUntouched(t *testing.T) {
	svc := newTestWhitelistService(t)
	require.NoError(t, svc.AddGlobalIP("10.0.0.5", ""))
	before := readFile(t, svc.path)

	assert.Error(t, svc.AddGlobalCIDR("10.0.0.0/33", ""))
	assert.Error(t, svc.AddGlobalIP("10.0.0.5", ""))
	assert.Equal(t, before, readFile(t, svc.path))
}

func TestWhitelistService_GlobalCIDRsAndDispatch(t *testing.T) {
	svc := newTestWhitelistService(t)

	require.NoError(t, svc.AddGlobal("192.168.0.0/16", ""))
	require.NoError(t, svc.AddGlobal("2001:db8::1", ""))
	assert.ErrorIs(t, svc.AddGlobalCIDR("192.168.0.0/16", ""), apperr.ErrValidation)

	f, err := svc.Load()
	require.NoError(t, err)
	assert.Len(t, f.Global.CIDRs, 1)
	assert.Len(t, f.Global.IPs, 1)

	require.NoError(t, svc.RemoveGlobal("192.168.0.0/16"))
	assert.ErrorIs(t, svc.RemoveGlobalCIDR("192.168.0.0/16"), apperr.ErrNotFound)
}

func TestWhitelistService_JailEntries(t *testing.T) {
	svc := newTestWhitelistService(t)

	require.NoError(t, svc.AddJailEntry("sshd", "172.16.0.0/12", ""))
	require.NoError(t, svc.AddJailEntry("sshd", "172.16.5.5", "bastion"))
	assert.ErrorIs(t, svc.AddJailEntry("sshd", "172.16.5.5", ""), apperr.ErrValidation)
	assert.ErrorIs(t, svc.AddJailEntry("../etc", "1.1.1.1", ""), apperr.ErrValidation)

	f, err := svc.Load()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"172.16.5.5", "172.16.0.0/12"}, JailValues(f, "sshd"))

	require.NoError(t, svc.RemoveJailEntry("sshd", "172.16.5.5"))
	require.NoError(t, svc.RemoveJailEntry("sshd", "172.16.0.0/12"))
	assert.ErrorIs(t, svc.RemoveJailEntry("sshd", "172.16.0.0/12"), apperr.ErrNotFound)

	f, err = svc.Load()
	require.NoError(t, err)
	assert.NotContains(t, f.Jails, "sshd")
}

func TestWhitelistService_Groups(t *testing.T) {
	svc := newTestWhitelistService(t)

	require.NoError(t, svc.CreateGroup("office", "HQ network"))
	assert.ErrorIs(t, svc.CreateGroup("office", ""), apperr.ErrValidation)
	assert.ErrorIs(t, svc.CreateGroup("bad name", ""), apperr.ErrValidation)

	require.NoError(t, svc.AddGroupEntry("office", "203.0.113.0/24", ""))
	require.NoError(t, svc.AddGroupEntry("office", "198.51.100.7", "vpn"))
	assert.ErrorIs(t, svc.AddGroupEntry("office", "198.51.100.7", ""), apperr.ErrValidation)
	assert.ErrorIs(t, svc.AddGroupEntry("missing", "1.1.1.1", ""), apperr.ErrNotFound)
	assert.ErrorIs(t, svc.AddGroupEntry("office", "nope", ""), apperr.ErrValidation)

	require.NoError(t, svc.AttachGroup("office"))
	assert.ErrorIs(t, svc.AttachGroup("office"), apperr.ErrValidation)
	assert.ErrorIs(t, svc.AttachGroup("missing"), apperr.ErrNotFound)

	f, err := svc.Load()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"203.0.113.0/24", "198.51.100.7"}, GlobalValues(f))

	require.NoError(t, svc.RemoveGroupEntry("office", "198.51.100.7"))
	assert.ErrorIs(t, svc.RemoveGroupEntry("office", "198.51.100.7"), apperr.ErrNotFound)

	require.NoError(t, svc.DetachGroup("office"))
	assert.ErrorIs(t, svc.DetachGroup("office"), apperr.ErrNotFound)

	require.NoError(t, svc.AttachGroup("office"))
	require.NoError(t, svc.DeleteGroup("office"))
	assert.ErrorIs(t, svc.DeleteGroup("office"), apperr.ErrNotFound)

	f, err = svc.Load()
	require.NoError(t, err)
	assert.Empty(t, f.Global.Groups)
	assert.Empty(t, f.Groups)
}

func TestWhitelistService_IsWhitelisted(t *testing.T) {
	svc := newTestWhitelistService(t)
	require.NoError(t, svc.AddGlobalCIDR("10.0.0.0/8", ""))
	require.NoError(t, svc.AddJailEntry("nginx", "192.0.2.10", ""))

	m, err := svc.IsWhitelisted("10.20.30.40", "")
	require.NoError(t, err)
	assert.True(t, m.Whitelisted)
	assert.Equal(t, "global", m.Scope)
	assert.Equal(t, "10.0.0.0/8", m.Value)

	m, err = svc.IsWhitelisted("127.0.0.1", "")
	require.NoError(t, err)
	assert.True(t, m.Whitelisted)

	m, err = svc.IsWhitelisted("192.0.2.10", "")
	require.NoError(t, err)
	assert.False(t, m.Whitelisted)

	m, err = svc.IsWhitelisted("192.0.2.10", "nginx")
	require.NoError(t, err)
	assert.True(t, m.Whitelisted)
	assert.Equal(t, "nginx", m.Scope)

	_, err = svc.IsWhitelisted("not-an-ip", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestWhitelistService_TrustedSources(t *testing.T) {
	svc := newTestWhitelistService(t)
	httpmock.ActivateNonDefault(svc.httpClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet, "https://www.cloudflare.com/ips-v4",
		httpmock.NewStringResponder(200, "173.245.48.0/20\n103.21.244.0/22\n173.245.48.0/20\n"))
	httpmock.RegisterResponder(http.MethodGet, "https://www.cloudflare.com/ips-v6",
		httpmock.NewStringResponder(503, "unavailable"))

	assert.ErrorIs(t, svc.SetTrustedSourceEnabled("nope", true), apperr.ErrNotFound)
	require.NoError(t, svc.SetTrustedSourceEnabled("cloudflare_v4", true))
	require.NoError(t, svc.SetTrustedSourceEnabled("cloudflare_v6", true))

	failures := svc.RefreshEnabled(context.Background())
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures["cloudflare_v6"], apperr.ErrExternalCommand)

	sources, err := svc.TrustedSources()
	require.NoError(t, err)
	var v4 models.TrustedSource
	for _, src := range sources {
		if src.Key == "cloudflare_v4" {
			v4 = src
		}
	}
	assert.Equal(t, []string{"173.245.48.0/20", "103.21.244.0/22"}, v4.Entries)
	require.NotNil(t, v4.LastUpdate)

	f, err := svc.Load()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"173.245.48.0/20", "103.21.244.0/22"}, GlobalValues(f))

	// disabled feeds keep their cache but stop contributing
	require.NoError(t, svc.SetTrustedSourceEnabled("cloudflare_v4", false))
	f, err = svc.Load()
	require.NoError(t, err)
	assert.Empty(t, GlobalValues(f))
	assert.Len(t, f.TrustedSources["cloudflare_v4"].Entries, 2)
}

func TestWhitelistService_RefreshUnknownSource(t *testing.T) {
	svc := newTestWhitelistService(t)
	_, err := svc.RefreshTrustedSource(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestExtractFeedEntries(t *testing.T) {
	meta, err := json.Marshal(map[string]interface{}{
		"verifiable_password_authentication": true,
		"hooks":                              []string{"192.30.252.0/22", "2606:50c0::/32"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"192.30.252.0/22", "2606:50c0::/32"}, ExtractFeedEntries(string(meta)))
	assert.Equal(t, []string{"1.2.3.4", "5.6.7.0/24"}, ExtractFeedEntries("# list\n1.2.3.4\n999.1.1.1\n5.6.7.0/24\n"))
	assert.Empty(t, ExtractFeedEntries("deadbeef cafe"))
}
