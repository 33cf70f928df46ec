package application_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-companion/internal/application"
	"voice-companion/internal/domain"
)

type fakeFrontend struct {
	mu      sync.Mutex
	started int
	stopped int
}

func (f *fakeFrontend) Name() string { return "fake" }

func (f *fakeFrontend) Start(_ context.Context) error {
	f.mu.Lock()
	f.started++
	f.mu.Unlock()
	return nil
}

func (f *fakeFrontend) Stop() error {
	f.mu.Lock()
	f.stopped++
	f.mu.Unlock()
	return nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, message string) error {
	n.mu.Lock()
	n.messages = append(n.messages, message)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

type companionFixture struct {
	*managerFixture
	companion *application.Companion
	repo      *memRepository
	frontend  *fakeFrontend
	notifier  *recordingNotifier
	done      chan error
	cancel    context.CancelFunc
}

func startCompanion(t *testing.T, autoConnect bool) *companionFixture {
	t.Helper()

	mf := newManagerFixture(t, nil)
	f := &companionFixture{
		managerFixture: mf,
		repo:           newMemRepository(),
		frontend:       &fakeFrontend{},
		notifier:       &recordingNotifier{},
		done:           make(chan error, 1),
	}

	policy := application.ReconnectPolicy{Delay: 20 * time.Millisecond, ManualGuard: 300 * time.Millisecond}
	cfg := application.CompanionConfig{
		AutoConnect:            autoConnect,
		SettingsReconnectDelay: 20 * time.Millisecond,
		SpeakingHold:           time.Second,
	}
	store := application.NewSettingsStore(f.repo, "", discardLogger())
	f.companion = application.NewCompanion(mf.manager, store, policy, f.notifier, nil, cfg, discardLogger())
	f.companion.AddFrontend(f.frontend)

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() { f.done <- f.companion.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-f.done:
		case <-time.After(waitFor):
			t.Error("companion did not stop")
		}
	})
	return f
}

func (f *companionFixture) waitConns(t *testing.T, n int) []*fakeConn {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(f.dialer.Conns()) >= n && f.manager.Connected()
	}, waitFor, 5*time.Millisecond)
	return f.dialer.Conns()
}

func TestCompanion_AutoConnectAndStop(t *testing.T) {
	f := startCompanion(t, true)

	f.waitConns(t, 1)
	assert.Equal(t, domain.StatusConnected, f.companion.State().Status)
	assert.NotEmpty(t, f.companion.State().SessionID)

	f.cancel()
	select {
	case err := <-f.done:
		require.NoError(t, err)
		f.done <- nil
	case <-time.After(waitFor):
		t.Fatal("companion did not stop")
	}

	assert.Equal(t, domain.StatusDisconnected, f.manager.Status())
	assert.Equal(t, 1, f.dialer.Conns()[0].Closed())
	f.frontend.mu.Lock()
	defer f.frontend.mu.Unlock()
	assert.Equal(t, 1, f.frontend.started)
	assert.Equal(t, 1, f.frontend.stopped)
}

func TestCompanion_ReconnectsAfterRemoteDrop(t *testing.T) {
	f := startCompanion(t, true)
	conns := f.waitConns(t, 1)

	conns[0].Drop()

	conns = f.waitConns(t, 2)
	assert.Len(t, conns, 2)
	assert.Equal(t, int64(1), f.manager.Stats().Snapshot().ReconnectsIssued)
}

func TestCompanion_NoReconnectAfterManualDisconnect(t *testing.T) {
	f := startCompanion(t, true)
	f.waitConns(t, 1)

	f.companion.Disconnect()

	time.Sleep(100 * time.Millisecond)
	assert.Len(t, f.dialer.Conns(), 1)
	assert.Equal(t, domain.StatusDisconnected, f.manager.Status())
	assert.Zero(t, f.manager.Stats().Snapshot().ReconnectsIssued)
}

func TestCompanion_SettingsChangeReconnects(t *testing.T) {
	f := startCompanion(t, true)
	f.waitConns(t, 1)

	settings := f.companion.Settings()
	settings.AIName = "Mira"
	settings.VoiceID = "Puck"
	saved, err := f.companion.UpdateSettings(context.Background(), settings)
	require.NoError(t, err)
	assert.Equal(t, "Mira", saved.AIName)

	f.waitConns(t, 2)
	configs := f.dialer.Configs()
	require.Len(t, configs, 2)
	assert.Equal(t, "Puck", configs[1].Voice)
	assert.Contains(t, configs[1].SystemInstruction, "Mira")
	assert.Equal(t, 1, f.repo.puts)
}

func TestCompanion_SettingsChangeWhileIdle(t *testing.T) {
	f := startCompanion(t, false)

	settings := f.companion.Settings()
	settings.UserName = "Rafi"
	_, err := f.companion.UpdateSettings(context.Background(), settings)
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, f.dialer.Conns())
	assert.Equal(t, "Rafi", f.companion.Settings().UserName)
}

func TestCompanion_SettingsChangeRejectsDuplicateIDs(t *testing.T) {
	f := startCompanion(t, false)

	settings := f.companion.Settings()
	settings.AIName = "Mira"
	settings.CustomAPIs = []domain.CustomAPI{{ID: "x"}, {ID: "x"}}
	_, err := f.companion.UpdateSettings(context.Background(), settings)

	require.ErrorIs(t, err, domain.ErrDuplicateAPIID)
	assert.Equal(t, "Sweetie", f.companion.Settings().AIName)
}

func TestCompanion_SpeakingIndicator(t *testing.T) {
	f := startCompanion(t, true)
	conns := f.waitConns(t, 1)

	conns[0].inbound <- &domain.ServerMessage{Audio: []string{chunk(240)}}
	require.Eventually(t, func() bool { return f.companion.State().Speaking }, waitFor, 5*time.Millisecond)

	conns[0].inbound <- &domain.ServerMessage{Interrupted: true, OutputTranscript: "okay"}
	require.Eventually(t, func() bool {
		st := f.companion.State()
		return !st.Speaking && st.LastAssistantText == "okay"
	}, waitFor, 5*time.Millisecond)
}

func TestCompanion_NotifiesConnectErrors(t *testing.T) {
	f := startCompanion(t, false)
	f.dialer.mu.Lock()
	f.dialer.err = errBoom
	f.dialer.mu.Unlock()

	err := f.companion.Connect(context.Background())
	require.ErrorIs(t, err, errBoom)

	require.Eventually(t, func() bool { return len(f.notifier.Messages()) == 1 }, waitFor, 5*time.Millisecond)
	assert.Contains(t, f.notifier.Messages()[0], "boom")
	assert.Equal(t, domain.StatusError, f.companion.State().Status)
}
