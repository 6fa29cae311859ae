package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/jailkeeper/internal/apperr"
	"github.com/Wikid82/jailkeeper/internal/engine"
	"github.com/Wikid82/jailkeeper/internal/models"
)

func newTestBanService(t *testing.T, jails ...string) (*BanService, *engine.FakeClient, *HistoryService) {
	t.Helper()
	fake := engine.NewFakeClient(jails...)
	history := NewHistoryService(setupHistoryDB(t))
	return NewBanService(fake, history), fake, history
}

func TestBanService_BanAndUnbanRecordHistory(t *testing.T) {
	svc, fake, history := newTestBanService(t, "sshd")
	ctx := context.Background()

	require.NoError(t, svc.Ban(ctx, "sshd", "1.2.3.4", "manual"))
	assert.Equal(t, []string{"1.2.3.4"}, fake.Banned["sshd"])
	require.NoError(t, svc.Unban(ctx, "sshd", "1.2.3.4"))

	events, err := history.Query(HistoryFilter{IP: "1.2.3.4"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	actions := []models.BanAction{events[0].Action, events[1].Action}
	assert.ElementsMatch(t, []models.BanAction{models.ActionBan, models.ActionUnban}, actions)
	for _, ev := range events {
		assert.Equal(t, "sshd", ev.Jail)
		assert.Equal(t, models.SourceLive, ev.Source)
	}
}

func TestBanService_Validation(t *testing.T) {
	svc, fake, _ := newTestBanService(t, "sshd")
	ctx := context.Background()

	assert.ErrorIs(t, svc.Ban(ctx, "sshd", "not-an-ip", ""), apperr.ErrValidation)
	assert.ErrorIs(t, svc.Ban(ctx, "ss hd", "1.2.3.4", ""), apperr.ErrValidation)
	assert.ErrorIs(t, svc.Unban(ctx, "", "1.2.3.4"), apperr.ErrValidation)
	assert.Empty(t, fake.Calls)
}

func TestBanService_EngineFailureNotRecorded(t *testing.T) {
	svc, _, history := newTestBanService(t, "sshd")
	err := svc.Ban(context.Background(), "nginx", "1.2.3.4", "")
	assert.ErrorIs(t, err, apperr.ErrExternalCommand)

	total, err := history.TotalBanCount()
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestBanService_UnbanEverywhere(t *testing.T) {
	svc, fake, _ := newTestBanService(t, "sshd", "nginx", "postfix")
	ctx := context.Background()
	require.NoError(t, svc.Ban(ctx, "sshd", "5.5.5.5", ""))
	require.NoError(t, svc.Ban(ctx, "postfix", "5.5.5.5", ""))

	outcomes, err := svc.UnbanEverywhere(ctx, "5.5.5.5")
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[0].OK)
	assert.False(t, outcomes[1].OK)
	assert.NotEmpty(t, outcomes[1].Error)
	assert.True(t, outcomes[2].OK)
	assert.Empty(t, fake.Banned["sshd"])

	_, err = svc.UnbanEverywhere(ctx, "bogus")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestBanService_Status(t *testing.T) {
	svc, fake, _ := newTestBanService(t, "sshd", "nginx")
	ctx := context.Background()
	require.NoError(t, svc.Ban(ctx, "nginx", "7.7.7.7", ""))

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Running)
	require.Len(t, st.Jails, 2)
	assert.Equal(t, "nginx", st.Jails[1].Name)
	assert.Equal(t, 1, st.Jails[1].CurrentlyBanned)

	jails, err := svc.BannedIn(ctx, "7.7.7.7")
	require.NoError(t, err)
	assert.Equal(t, []string{"nginx"}, jails)

	jails, err = svc.BannedIn(ctx, " 7.7.7.7\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"nginx"}, jails)

	fake.Running = false
	st, err = svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Running)
	assert.Empty(t, st.Jails)
}
