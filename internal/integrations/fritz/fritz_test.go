package fritz

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"hubadapters/internal/clock"
	"hubadapters/internal/config"
	"hubadapters/internal/entity"
	"hubadapters/internal/entry"
	"hubadapters/internal/flow"
	"hubadapters/internal/fritzbox"
	"hubadapters/pkg/plugin"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeConnector answers Connect with a fixed device or error and records
// the options it was called with
type fakeConnector struct {
	mu     sync.Mutex
	err    error
	calls  []fritzbox.Options
	device fritzbox.Device
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{device: fritzbox.Device{
		Model:        "FRITZ!Box 7590",
		SerialNumber: "fake_serial_number",
		UDN:          "uuid:only-a-test",
	}}
}

func (c *fakeConnector) Connect(ctx context.Context, opts fritzbox.Options) (*fritzbox.Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, opts)
	if c.err != nil {
		return nil, c.err
	}
	d := c.device
	d.Host = opts.Host
	d.Port = opts.Port
	return &d, nil
}

func (c *fakeConnector) lastCall() fritzbox.Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[len(c.calls)-1]
}

var (
	userData = flow.Input{
		ConfHost:     "fake_host",
		ConfPort:     1234,
		ConfUsername: "fake_user",
		ConfPassword: "fake_pass",
	}
	ssdpData = flow.Input{
		SSDPLocation:     "https://fake_host:12345/test",
		SSDPFriendlyName: "fake_name",
		SSDPUDN:          "uuid:only-a-test",
	}
)

type harness struct {
	manager     *flow.Manager
	entries     *entry.Registry
	connector   *fakeConnector
	integration *Integration
}

func newHarness(t *testing.T, store entry.Store, cfg *config.Config) *harness {
	t.Helper()
	entries := entry.NewRegistry(store, zap.NewNop())
	require.NoError(t, entries.Load(context.Background()))

	clk := clock.NewMockClock(clock.NewRealClock().Now())
	pctx := plugin.NewContext(nil, entity.NewRegistry(clk, zap.NewNop()), zap.NewNop(), clk, false, cfg)
	connector := newFakeConnector()
	integration := New(pctx, connector)

	m := flow.NewManager(entries, zap.NewNop())
	m.Register(Domain, integration.ConfigFlow)
	m.RegisterOptions(Domain, integration.OptionsFlow)

	return &harness{manager: m, entries: entries, connector: connector, integration: integration}
}

func (h *harness) addEntry(t *testing.T, uniqueID string) *entry.Entry {
	t.Helper()
	e, err := h.entries.Add(context.Background(), &entry.Entry{
		Domain:   Domain,
		Title:    "fake",
		UniqueID: uniqueID,
		Data: map[string]any{
			ConfHost:     "fake_host",
			ConfPort:     1234,
			ConfUsername: "fake_user",
			ConfPassword: "fake_pass",
		},
	})
	require.NoError(t, err)
	return e
}

func TestConfigFlow_User(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, entry.NewMemoryStore(), nil)

	result, err := h.manager.Init(ctx, Domain, flow.Context{Source: entry.SourceUser}, nil)
	require.NoError(t, err)
	assert.Equal(t, flow.ResultForm, result.Type)
	assert.Equal(t, StepUser, result.StepID)

	result, err = h.manager.Configure(ctx, result.FlowID, userData)
	require.NoError(t, err)
	require.Equal(t, flow.ResultCreateEntry, result.Type)
	assert.Equal(t, "FRITZ!Box 7590", result.Title)
	assert.Equal(t, "fake_host", result.Data[ConfHost])
	assert.Equal(t, 1234, result.Data[ConfPort])
	assert.Equal(t, "fake_user", result.Data[ConfUsername])
	assert.Equal(t, "fake_pass", result.Data[ConfPassword])
	assert.Equal(t, DefaultConsiderHome, result.Options[ConfConsiderHome])

	require.NotNil(t, result.Entry)
	assert.Empty(t, result.Entry.UniqueID)
	assert.Len(t, h.entries.Entries(Domain), 1)

	call := h.connector.lastCall()
	assert.Equal(t, "fake_host", call.Host)
	assert.Equal(t, 1234, call.Port)
	assert.Equal(t, "fake_pass", call.Password)
}

func TestConfigFlow_UserDefaults(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, entry.NewMemoryStore(), nil)

	result, err := h.manager.Init(ctx, Domain, flow.Context{}, flow.Input{ConfUsername: "admin", ConfPassword: "secret"})
	require.NoError(t, err)
	require.Equal(t, flow.ResultCreateEntry, result.Type)
	assert.Equal(t, fritzbox.DefaultHost, result.Data[ConfHost])
	assert.Equal(t, fritzbox.DefaultPort, result.Data[ConfPort])
}

func TestConfigFlow_UserAlreadyConfigured(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, entry.NewMemoryStore(), nil)
	h.addEntry(t, "")

	result, err := h.manager.Init(ctx, Domain, flow.Context{Source: entry.SourceUser}, nil)
	require.NoError(t, err)

	result, err = h.manager.Configure(ctx, result.FlowID, userData)
	require.NoError(t, err)
	assert.Equal(t, flow.ResultForm, result.Type)
	assert.Equal(t, StepUser, result.StepID)
	assert.Equal(t, flow.ReasonAlreadyConfigured, result.Errors[flow.ErrorBase])
	assert.Len(t, h.entries.Entries(Domain), 1)
}

func TestConfigFlow_UserMissingCredentials(t *testing.T) {
	tests := []struct {
		name  string
		input flow.Input
		want  map[string]string
	}{
		{name: "empty", input: flow.Input{}, want: map[string]string{ConfUsername: ErrorRequired, ConfPassword: ErrorRequired}},
		{name: "no password", input: flow.Input{ConfHost: "fake_host", ConfUsername: "fake_user"}, want: map[string]string{ConfPassword: ErrorRequired}},
		{name: "empty password", input: flow.Input{ConfUsername: "fake_user", ConfPassword: ""}, want: map[string]string{ConfPassword: ErrorRequired}},
		{name: "no username", input: flow.Input{ConfPassword: "fake_pass"}, want: map[string]string{ConfUsername: ErrorRequired}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t, entry.NewMemoryStore(), nil)

			result, err := h.manager.Init(ctx, Domain, flow.Context{Source: entry.SourceUser}, nil)
			require.NoError(t, err)

			result, err = h.manager.Configure(ctx, result.FlowID, tt.input)
			require.NoError(t, err)
			assert.Equal(t, flow.ResultForm, result.Type)
			assert.Equal(t, StepUser, result.StepID)
			assert.Equal(t, tt.want, result.Errors)
			assert.Empty(t, h.connector.calls)
			assert.Empty(t, h.entries.Entries(Domain))
		})
	}
}

func TestConfigFlow_UserNumericPassword(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, entry.NewMemoryStore(), nil)
	h.connector.err = fritzbox.ErrSecurity

	result, err := h.manager.Init(ctx, Domain, flow.Context{Source: entry.SourceUser}, nil)
	require.NoError(t, err)

	input := flow.Input{ConfHost: "fake_host", ConfUsername: "fake_user", ConfPassword: 123456}
	result, err = h.manager.Configure(ctx, result.FlowID, input)
	require.NoError(t, err)
	assert.Equal(t, ErrorInvalidAuth, result.Errors[flow.ErrorBase])
	assert.Equal(t, "123456", h.connector.lastCall().Password)

	h.connector.err = nil
	result, err = h.manager.Configure(ctx, result.FlowID, input)
	require.NoError(t, err)
	require.Equal(t, flow.ResultCreateEntry, result.Type)
	assert.Equal(t, "123456", result.Data[ConfPassword])
}

func TestConfigFlow_UserConnectionErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "security", err: fritzbox.ErrSecurity, want: ErrorInvalidAuth},
		{name: "wrapped security", err: errors.Join(errors.New("login"), fritzbox.ErrSecurity), want: ErrorInvalidAuth},
		{name: "connection", err: fritzbox.ErrConnection, want: ErrorCannotConnect},
		{name: "unknown", err: errors.New("os error"), want: ErrorUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t, entry.NewMemoryStore(), nil)
			h.connector.err = tt.err

			result, err := h.manager.Init(ctx, Domain, flow.Context{Source: entry.SourceUser}, nil)
			require.NoError(t, err)

			result, err = h.manager.Configure(ctx, result.FlowID, userData)
			require.NoError(t, err)
			assert.Equal(t, flow.ResultForm, result.Type)
			assert.Equal(t, StepUser, result.StepID)
			assert.Equal(t, tt.want, result.Errors[flow.ErrorBase])

			// The flow stays open for another attempt.
			h.connector.err = nil
			result, err = h.manager.Configure(ctx, result.FlowID, userData)
			require.NoError(t, err)
			assert.Equal(t, flow.ResultCreateEntry, result.Type)
		})
	}
}

func TestConfigFlow_ReauthSuccessful(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, entry.NewMemoryStore(), nil)
	e := h.addEntry(t, "")

	result, err := h.manager.Init(ctx, Domain,
		flow.Context{Source: entry.SourceReauth, EntryID: e.EntryID},
		flow.Input(e.Data))
	require.NoError(t, err)
	assert.Equal(t, flow.ResultForm, result.Type)
	assert.Equal(t, StepReauthConfirm, result.StepID)
	assert.Equal(t, "fake_user", result.Schema[0].Default)

	result, err = h.manager.Configure(ctx, result.FlowID, flow.Input{
		ConfUsername: "other_fake_user",
		ConfPassword: "other_fake_password",
	})
	require.NoError(t, err)
	assert.Equal(t, flow.ResultAbort, result.Type)
	assert.Equal(t, ReasonReauthSuccess, result.Reason)

	updated, ok := h.entries.Get(e.EntryID)
	require.True(t, ok)
	assert.Equal(t, "other_fake_user", updated.DataString(ConfUsername))
	assert.Equal(t, "other_fake_password", updated.DataString(ConfPassword))
	assert.Equal(t, "fake_host", updated.DataString(ConfHost))
	assert.Len(t, h.entries.Entries(Domain), 1)
}

func TestConfigFlow_ReauthNotSuccessful(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "security", err: fritzbox.ErrSecurity, want: ErrorInvalidAuth},
		{name: "connection", err: fritzbox.ErrConnection, want: ErrorCannotConnect},
		{name: "unknown", err: errors.New("os error"), want: ErrorUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t, entry.NewMemoryStore(), nil)
			e := h.addEntry(t, "")
			h.connector.err = tt.err

			result, err := h.manager.Init(ctx, Domain,
				flow.Context{Source: entry.SourceReauth, EntryID: e.EntryID},
				flow.Input(e.Data))
			require.NoError(t, err)
			assert.Equal(t, StepReauthConfirm, result.StepID)

			result, err = h.manager.Configure(ctx, result.FlowID, flow.Input{
				ConfUsername: "other_fake_user",
				ConfPassword: "other_fake_password",
			})
			require.NoError(t, err)
			assert.Equal(t, flow.ResultForm, result.Type)
			assert.Equal(t, StepReauthConfirm, result.StepID)
			assert.Equal(t, tt.want, result.Errors[flow.ErrorBase])

			unchanged, _ := h.entries.Get(e.EntryID)
			assert.Equal(t, "fake_pass", unchanged.DataString(ConfPassword))
		})
	}
}

func TestConfigFlow_ReauthMissingPassword(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, entry.NewMemoryStore(), nil)
	e := h.addEntry(t, "")

	result, err := h.manager.Init(ctx, Domain,
		flow.Context{Source: entry.SourceReauth, EntryID: e.EntryID},
		flow.Input(e.Data))
	require.NoError(t, err)

	result, err = h.manager.Configure(ctx, result.FlowID, flow.Input{ConfPassword: ""})
	require.NoError(t, err)
	assert.Equal(t, StepReauthConfirm, result.StepID)
	assert.Equal(t, map[string]string{ConfPassword: ErrorRequired}, result.Errors)
	assert.Empty(t, h.connector.calls)

	// The stored username is kept when only a password is given.
	result, err = h.manager.Configure(ctx, result.FlowID, flow.Input{ConfPassword: "new_pass"})
	require.NoError(t, err)
	assert.Equal(t, ReasonReauthSuccess, result.Reason)
	updated, _ := h.entries.Get(e.EntryID)
	assert.Equal(t, "fake_user", updated.DataString(ConfUsername))
	assert.Equal(t, "new_pass", updated.DataString(ConfPassword))
}

func TestConfigFlow_ReauthUnknownEntry(t *testing.T) {
	h := newHarness(t, entry.NewMemoryStore(), nil)

	result, err := h.manager.Init(context.Background(), Domain,
		flow.Context{Source: entry.SourceReauth, EntryID: "missing"}, nil)
	require.NoError(t, err)
	assert.Equal(t, flow.ResultAbort, result.Type)
}

func TestConfigFlow_SSDPAlreadyConfigured(t *testing.T) {
	tests := []struct {
		name         string
		uniqueID     string
		wantUniqueID string
	}{
		{name: "same unique id", uniqueID: "only-a-test", wantUniqueID: "only-a-test"},
		{name: "same host, other unique id", uniqueID: "different-test", wantUniqueID: "different-test"},
		{name: "same host, no unique id", uniqueID: "", wantUniqueID: "only-a-test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t, entry.NewMemoryStore(), nil)
			e := h.addEntry(t, tt.uniqueID)

			result, err := h.manager.Init(ctx, Domain, flow.Context{Source: entry.SourceSSDP}, ssdpData)
			require.NoError(t, err)
			assert.Equal(t, flow.ResultAbort, result.Type)
			assert.Equal(t, flow.ReasonAlreadyConfigured, result.Reason)
			assert.Empty(t, h.manager.InProgress(Domain))

			updated, _ := h.entries.Get(e.EntryID)
			assert.Equal(t, tt.wantUniqueID, updated.UniqueID)
		})
	}
}

func TestConfigFlow_SSDPKnownDeviceMoved(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, entry.NewMemoryStore(), nil)
	e := h.addEntry(t, "only-a-test")

	moved := flow.Input{
		SSDPLocation:     "http://192.168.178.2:49000/tr64desc.xml",
		SSDPFriendlyName: "fake_name",
		SSDPUDN:          "uuid:only-a-test",
	}
	result, err := h.manager.Init(ctx, Domain, flow.Context{Source: entry.SourceSSDP}, moved)
	require.NoError(t, err)
	assert.Equal(t, flow.ReasonAlreadyConfigured, result.Reason)

	updated, _ := h.entries.Get(e.EntryID)
	assert.Equal(t, "192.168.178.2", updated.DataString(ConfHost))
}

func TestConfigFlow_SSDPAlreadyInProgress(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, entry.NewMemoryStore(), nil)

	result, err := h.manager.Init(ctx, Domain, flow.Context{Source: entry.SourceSSDP}, ssdpData)
	require.NoError(t, err)
	assert.Equal(t, flow.ResultForm, result.Type)
	assert.Equal(t, StepConfirm, result.StepID)

	t.Run("same unique id", func(t *testing.T) {
		result, err := h.manager.Init(ctx, Domain, flow.Context{Source: entry.SourceSSDP}, ssdpData)
		require.NoError(t, err)
		assert.Equal(t, flow.ResultAbort, result.Type)
		assert.Equal(t, flow.ReasonAlreadyInProgress, result.Reason)
	})

	t.Run("same host without unique id", func(t *testing.T) {
		noUDN := flow.Input{
			SSDPLocation:     ssdpData[SSDPLocation],
			SSDPFriendlyName: ssdpData[SSDPFriendlyName],
		}
		result, err := h.manager.Init(ctx, Domain, flow.Context{Source: entry.SourceSSDP}, noUDN)
		require.NoError(t, err)
		assert.Equal(t, flow.ResultAbort, result.Type)
		assert.Equal(t, flow.ReasonAlreadyInProgress, result.Reason)
	})

	assert.Len(t, h.manager.InProgress(Domain), 1)
}

func TestConfigFlow_SSDP(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, entry.NewMemoryStore(), nil)

	result, err := h.manager.Init(ctx, Domain, flow.Context{Source: entry.SourceSSDP}, flow.Input{
		SSDPLocation:     "https://fake_host:12345/test",
		SSDPFriendlyName: "FRITZ!Box 7530",
		SSDPUDN:          "uuid:only-a-test",
	})
	require.NoError(t, err)
	assert.Equal(t, flow.ResultForm, result.Type)
	assert.Equal(t, StepConfirm, result.StepID)
	assert.Equal(t, "7530", result.Placeholders["name"])

	progress := h.manager.InProgress(Domain)
	require.Len(t, progress, 1)
	assert.Equal(t, "fake_host", progress[0].Context.Host)
	assert.Equal(t, "only-a-test", progress[0].Context.UniqueID)

	result, err = h.manager.Configure(ctx, result.FlowID, flow.Input{
		ConfUsername: "fake_user",
		ConfPassword: "fake_pass",
	})
	require.NoError(t, err)
	require.Equal(t, flow.ResultCreateEntry, result.Type)
	assert.Equal(t, "FRITZ!Box 7530", result.Title)
	assert.Equal(t, "fake_host", result.Data[ConfHost])
	assert.Equal(t, 12345, result.Data[ConfPort])
	assert.Equal(t, "fake_user", result.Data[ConfUsername])
	assert.Equal(t, "fake_pass", result.Data[ConfPassword])
	assert.Equal(t, "only-a-test", result.Entry.UniqueID)
	assert.Equal(t, entry.SourceSSDP, result.Entry.Source)
}

func TestConfigFlow_SSDPException(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, entry.NewMemoryStore(), nil)
	h.connector.err = fritzbox.ErrConnection

	result, err := h.manager.Init(ctx, Domain, flow.Context{Source: entry.SourceSSDP}, ssdpData)
	require.NoError(t, err)
	assert.Equal(t, StepConfirm, result.StepID)

	result, err = h.manager.Configure(ctx, result.FlowID, flow.Input{
		ConfUsername: "fake_user",
		ConfPassword: "fake_pass",
	})
	require.NoError(t, err)
	assert.Equal(t, flow.ResultForm, result.Type)
	assert.Equal(t, StepConfirm, result.StepID)
	assert.Empty(t, result.Errors)
}

func TestConfigFlow_SSDPConfirmErrors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, entry.NewMemoryStore(), nil)
	h.connector.err = fritzbox.ErrSecurity

	result, err := h.manager.Init(ctx, Domain, flow.Context{Source: entry.SourceSSDP}, ssdpData)
	require.NoError(t, err)
	flowID := result.FlowID

	result, err = h.manager.Configure(ctx, flowID, flow.Input{
		ConfUsername: "fake_user",
		ConfPassword: "wrong_pass",
	})
	require.NoError(t, err)
	assert.Equal(t, StepConfirm, result.StepID)
	assert.Empty(t, result.Errors)

	result, err = h.manager.Configure(ctx, flowID, flow.Input{ConfUsername: "fake_user"})
	require.NoError(t, err)
	assert.Equal(t, StepConfirm, result.StepID)
	assert.Equal(t, map[string]string{ConfPassword: ErrorRequired}, result.Errors)
	assert.Len(t, h.connector.calls, 1)
	assert.Empty(t, h.entries.Entries(Domain))
}

func TestConfigFlow_SSDPBadLocation(t *testing.T) {
	h := newHarness(t, entry.NewMemoryStore(), nil)

	result, err := h.manager.Init(context.Background(), Domain, flow.Context{Source: entry.SourceSSDP},
		flow.Input{SSDPLocation: "::not a url"})
	require.NoError(t, err)
	assert.Equal(t, flow.ResultAbort, result.Type)
}

func TestConfigFlow_Import(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{Fritz: []config.FritzConfig{{Host: "fake_host", Username: "username"}}}
	h := newHarness(t, entry.NewMemoryStore(), cfg)

	imports := h.integration.Imports()
	require.Len(t, imports, 1)

	result, err := h.manager.Init(ctx, Domain, flow.Context{Source: entry.SourceImport}, imports[0])
	require.NoError(t, err)
	require.Equal(t, flow.ResultCreateEntry, result.Type)
	assert.Equal(t, "fake_host", result.Data[ConfHost])
	assert.Nil(t, result.Data[ConfPassword])
	assert.Equal(t, "username", result.Data[ConfUsername])
	assert.Equal(t, entry.SourceImport, result.Entry.Source)

	t.Run("again", func(t *testing.T) {
		result, err := h.manager.Init(ctx, Domain, flow.Context{Source: entry.SourceImport}, imports[0])
		require.NoError(t, err)
		assert.Equal(t, flow.ResultAbort, result.Type)
		assert.Equal(t, flow.ReasonAlreadyConfigured, result.Reason)
	})

	t.Run("unreachable", func(t *testing.T) {
		h.connector.err = fritzbox.ErrConnection
		result, err := h.manager.Init(ctx, Domain, flow.Context{Source: entry.SourceImport},
			flow.Input{ConfHost: "other_host", ConfUsername: "username"})
		require.NoError(t, err)
		assert.Equal(t, flow.ResultAbort, result.Type)
		assert.Equal(t, ErrorCannotConnect, result.Reason)
	})
}

func TestOptionsFlow(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "entries.db")

	store, err := entry.NewSQLiteStore(path)
	require.NoError(t, err)
	h := newHarness(t, store, nil)
	e := h.addEntry(t, "")

	result, err := h.manager.InitOptions(ctx, e.EntryID)
	require.NoError(t, err)
	assert.Equal(t, flow.ResultForm, result.Type)
	assert.Equal(t, flow.StepInit, result.StepID)
	assert.Equal(t, DefaultConsiderHome, result.Schema[0].Default)

	result, err = h.manager.InitOptions(ctx, e.EntryID)
	require.NoError(t, err)
	result, err = h.manager.Configure(ctx, result.FlowID, flow.Input{ConfConsiderHome: 37})
	require.NoError(t, err)
	assert.Equal(t, flow.ResultCreateEntry, result.Type)

	updated, _ := h.entries.Get(e.EntryID)
	assert.Equal(t, 37, updated.OptionInt(ConfConsiderHome, 0))
	require.NoError(t, store.Close())

	// Survives a restart.
	store, err = entry.NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()
	reloaded := entry.NewRegistry(store, zap.NewNop())
	require.NoError(t, reloaded.Load(ctx))
	got, ok := reloaded.Get(e.EntryID)
	require.True(t, ok)
	assert.Equal(t, 37, got.OptionInt(ConfConsiderHome, 0))
}

func TestOptionsFlow_Values(t *testing.T) {
	tests := []struct {
		name      string
		value     any
		want      int
		wantError bool
	}{
		{name: "in range", value: 600, want: 600},
		{name: "numeric string", value: "120", want: 120},
		{name: "above max", value: 3600, want: MaxConsiderHome},
		{name: "negative", value: -5, want: 0},
		{name: "integral float", value: float64(240), want: 240},
		{name: "fractional float", value: 37.9, wantError: true},
		{name: "not a number", value: "soon", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t, entry.NewMemoryStore(), nil)
			e := h.addEntry(t, "")

			result, err := h.manager.InitOptions(ctx, e.EntryID)
			require.NoError(t, err)
			result, err = h.manager.Configure(ctx, result.FlowID, flow.Input{ConfConsiderHome: tt.value})
			require.NoError(t, err)

			if tt.wantError {
				assert.Equal(t, flow.ResultForm, result.Type)
				assert.Equal(t, flow.StepInit, result.StepID)
				assert.Equal(t, ErrorInvalidConsider, result.Errors[ConfConsiderHome])
				return
			}
			assert.Equal(t, flow.ResultCreateEntry, result.Type)
			updated, _ := h.entries.Get(e.EntryID)
			assert.Equal(t, tt.want, updated.OptionInt(ConfConsiderHome, -1))
		})
	}
}

func TestOptionsFlow_KeepsCurrentWhenOmitted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, entry.NewMemoryStore(), nil)
	e := h.addEntry(t, "")

	result, err := h.manager.InitOptions(ctx, e.EntryID)
	require.NoError(t, err)
	result, err = h.manager.Configure(ctx, result.FlowID, flow.Input{})
	require.NoError(t, err)
	require.Equal(t, flow.ResultCreateEntry, result.Type)

	updated, _ := h.entries.Get(e.EntryID)
	assert.Equal(t, DefaultConsiderHome, updated.OptionInt(ConfConsiderHome, -1))

	_, err = h.entries.Update(ctx, e.EntryID, func(e *entry.Entry) {
		e.Options = map[string]any{ConfConsiderHome: 60}
	})
	require.NoError(t, err)
	result, err = h.manager.InitOptions(ctx, e.EntryID)
	require.NoError(t, err)
	_, err = h.manager.Configure(ctx, result.FlowID, flow.Input{})
	require.NoError(t, err)

	updated, _ = h.entries.Get(e.EntryID)
	assert.Equal(t, 60, updated.OptionInt(ConfConsiderHome, -1))
}

func TestIntegration_SetupEntry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, entry.NewMemoryStore(), nil)
	e := h.addEntry(t, "")

	require.NoError(t, h.integration.SetupEntry(ctx, e))
	device, ok := h.integration.Device(e.EntryID)
	require.True(t, ok)
	assert.Equal(t, "fake_host", device.Host)
	assert.Equal(t, 1234, device.Port)

	require.NoError(t, h.integration.UnloadEntry(ctx, e))
	_, ok = h.integration.Device(e.EntryID)
	assert.False(t, ok)
}

func TestIntegration_SetupEntryErrors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, entry.NewMemoryStore(), nil)
	e := h.addEntry(t, "")

	h.connector.err = fritzbox.ErrSecurity
	err := h.integration.SetupEntry(ctx, e)
	assert.True(t, errors.Is(err, plugin.ErrAuthFailed))

	h.connector.err = fritzbox.ErrConnection
	err = h.integration.SetupEntry(ctx, e)
	assert.True(t, errors.Is(err, fritzbox.ErrConnection))
	assert.False(t, errors.Is(err, plugin.ErrAuthFailed))
}

func TestRegisteredWithPluginRegistry(t *testing.T) {
	info := plugin.Get(Domain)
	require.NotNil(t, info)
	assert.Equal(t, 40, info.Order)
}
