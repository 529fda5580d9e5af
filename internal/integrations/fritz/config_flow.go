package fritz

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"

	"hubadapters/internal/entry"
	"hubadapters/internal/flow"
	"hubadapters/internal/fritzbox"

	"go.uber.org/zap"
)

// Keys of entry data and flow input.
const (
	ConfHost         = "host"
	ConfPort         = "port"
	ConfUsername     = "username"
	ConfPassword     = "password"
	ConfConsiderHome = "consider_home"
)

// SSDP announcement keys passed as input to the ssdp step.
const (
	SSDPLocation     = "ssdp_location"
	SSDPFriendlyName = "friendlyName"
	SSDPUDN          = "UDN"
)

// Error codes shown on forms or used as abort reasons.
const (
	ErrorInvalidAuth     = "invalid_auth"
	ErrorCannotConnect   = "cannot_connect"
	ErrorUnknown         = "unknown"
	ErrorRequired        = "required"
	ReasonReauthSuccess  = "reauth_successful"
	ErrorInvalidConsider = "invalid_consider_home"
)

// Step ids.
const (
	StepUser          = "user"
	StepConfirm       = "confirm"
	StepReauthConfirm = "reauth_confirm"
)

// classify maps a connection failure to a form error code.
func classify(err error) string {
	switch {
	case errors.Is(err, fritzbox.ErrSecurity):
		return ErrorInvalidAuth
	case errors.Is(err, fritzbox.ErrConnection):
		return ErrorCannotConnect
	default:
		return ErrorUnknown
	}
}

type configFlow struct {
	flow      *flow.Flow
	connector fritzbox.Connector
	logger    *zap.Logger

	// filled as the flow goes
	host     string
	port     int
	name     string
	username string
	password string
	entry    *entry.Entry
}

func (h *configFlow) Step(ctx context.Context, stepID string, input flow.Input) (flow.Result, error) {
	switch stepID {
	case StepUser:
		return h.stepUser(ctx, input)
	case string(entry.SourceSSDP):
		return h.stepSSDP(ctx, input)
	case StepConfirm:
		return h.stepConfirm(ctx, input)
	case string(entry.SourceReauth):
		return h.stepReauth(input)
	case StepReauthConfirm:
		return h.stepReauthConfirm(ctx, input)
	case string(entry.SourceImport):
		return h.stepImport(ctx, input)
	}
	return flow.Abort("not_supported"), nil
}

// connect tries the credentials collected so far. It returns the error code
// to show, or "" and the device on success.
func (h *configFlow) connect(ctx context.Context) (*fritzbox.Device, string) {
	device, err := h.connector.Connect(ctx, fritzbox.Options{
		Host:     h.host,
		Port:     h.port,
		Username: h.username,
		Password: h.password,
	})
	if err != nil {
		code := classify(err)
		if code == ErrorUnknown {
			h.logger.Error("Unexpected error connecting to FRITZ!Box", zap.String("host", h.host), zap.Error(err))
		} else {
			h.logger.Debug("Connecting to FRITZ!Box failed", zap.String("host", h.host), zap.String("code", code), zap.Error(err))
		}
		return nil, code
	}
	return device, ""
}

func (h *configFlow) hostConfigured(host string) (*entry.Entry, bool) {
	for _, e := range h.flow.Entries() {
		if e.DataString(ConfHost) == host {
			return e, true
		}
	}
	return nil, false
}

func (h *configFlow) hostInProgress(host string) bool {
	for _, p := range h.flow.InProgress() {
		if p.Context.Host == host {
			return true
		}
	}
	return false
}

func (h *configFlow) createEntry(device *fritzbox.Device) flow.Result {
	title := h.name
	if title == "" {
		title = device.Model
	}

	var password any
	if h.password != "" {
		password = h.password
	}

	return flow.CreateEntry(title,
		map[string]any{
			ConfHost:     h.host,
			ConfPort:     h.port,
			ConfUsername: h.username,
			ConfPassword: password,
		},
		map[string]any{ConfConsiderHome: DefaultConsiderHome},
	)
}

// readInput copies connection settings from input, falling back to defaults.
func (h *configFlow) readInput(input flow.Input) {
	h.host = input.String(ConfHost)
	if h.host == "" {
		h.host = fritzbox.DefaultHost
	}
	h.port = fritzbox.DefaultPort
	if port, ok := input.Int(ConfPort); ok && port > 0 {
		h.port = port
	}
	h.username = input.String(ConfUsername)
	h.password = input.String(ConfPassword)
}

// missingCredentials returns field errors for an empty username or
// password. Only imports may connect without them.
func (h *configFlow) missingCredentials() map[string]string {
	errs := make(map[string]string)
	if h.username == "" {
		errs[ConfUsername] = ErrorRequired
	}
	if h.password == "" {
		errs[ConfPassword] = ErrorRequired
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (h *configFlow) stepUser(ctx context.Context, input flow.Input) (flow.Result, error) {
	if input == nil {
		return userForm(nil), nil
	}

	h.readInput(input)
	if errs := h.missingCredentials(); errs != nil {
		return userForm(errs), nil
	}

	device, code := h.connect(ctx)
	if code != "" {
		return userForm(flow.BaseError(code)), nil
	}

	if _, ok := h.hostConfigured(h.host); ok {
		return userForm(flow.BaseError(flow.ReasonAlreadyConfigured)), nil
	}

	return h.createEntry(device), nil
}

func (h *configFlow) stepSSDP(ctx context.Context, input flow.Input) (flow.Result, error) {
	location, err := url.Parse(input.String(SSDPLocation))
	if err != nil || location.Hostname() == "" {
		h.logger.Debug("Ignoring announcement without a usable location", zap.String("location", input.String(SSDPLocation)))
		return flow.Abort(ErrorCannotConnect), nil
	}

	h.host = location.Hostname()
	h.port = fritzbox.DefaultPort
	if p := location.Port(); p != "" {
		if port, err := strconv.Atoi(p); err == nil {
			h.port = port
		}
	}
	h.name = input.String(SSDPFriendlyName)
	h.flow.SetHost(h.host)

	uniqueID := strings.TrimPrefix(input.String(SSDPUDN), "uuid:")
	if uniqueID != "" {
		if err := h.flow.SetUniqueID(uniqueID); err != nil {
			return flow.Result{}, err
		}
		if err := h.flow.AbortIfUniqueIDConfigured(ctx, map[string]any{ConfHost: h.host}); err != nil {
			return flow.Result{}, err
		}
	}

	if h.hostInProgress(h.host) {
		return flow.Abort(flow.ReasonAlreadyInProgress), nil
	}

	if existing, ok := h.hostConfigured(h.host); ok {
		if uniqueID != "" && existing.UniqueID == "" {
			if _, err := h.flow.UpdateEntry(ctx, existing.EntryID, func(e *entry.Entry) {
				e.UniqueID = uniqueID
			}); err != nil {
				return flow.Result{}, err
			}
		}
		return flow.Abort(flow.ReasonAlreadyConfigured), nil
	}

	h.logger.Info("Discovered FRITZ!Box",
		zap.String("host", h.host),
		zap.String("name", h.name),
		zap.String("unique_id", uniqueID))

	return h.confirmForm(nil), nil
}

func (h *configFlow) stepConfirm(ctx context.Context, input flow.Input) (flow.Result, error) {
	if len(input) == 0 {
		return h.confirmForm(nil), nil
	}

	h.username = input.String(ConfUsername)
	h.password = input.String(ConfPassword)
	if errs := h.missingCredentials(); errs != nil {
		return h.confirmForm(errs), nil
	}

	// Connection failures re-show the form without an error.
	device, code := h.connect(ctx)
	if code != "" {
		return h.confirmForm(nil), nil
	}
	return h.createEntry(device), nil
}

func (h *configFlow) confirmForm(errs map[string]string) flow.Result {
	result := flow.Form(StepConfirm, credentialFields(""), errs)
	result.Placeholders = map[string]string{
		"name": strings.TrimPrefix(h.name, "FRITZ!Box "),
	}
	return result
}

func (h *configFlow) stepReauth(input flow.Input) (flow.Result, error) {
	e, ok := h.flow.Entry(h.flow.Context().EntryID)
	if !ok {
		return flow.Abort("entry_not_found"), nil
	}
	h.entry = e
	h.host = e.DataString(ConfHost)
	h.port = e.DataInt(ConfPort, fritzbox.DefaultPort)
	h.username = e.DataString(ConfUsername)
	if u := input.String(ConfUsername); u != "" {
		h.username = u
	}
	return h.reauthForm(nil), nil
}

func (h *configFlow) stepReauthConfirm(ctx context.Context, input flow.Input) (flow.Result, error) {
	if len(input) == 0 {
		return h.reauthForm(nil), nil
	}

	if u := input.String(ConfUsername); u != "" {
		h.username = u
	}
	h.password = input.String(ConfPassword)
	if errs := h.missingCredentials(); errs != nil {
		return h.reauthForm(errs), nil
	}

	if _, code := h.connect(ctx); code != "" {
		return h.reauthForm(flow.BaseError(code)), nil
	}

	if _, err := h.flow.UpdateEntry(ctx, h.entry.EntryID, func(e *entry.Entry) {
		if e.Data == nil {
			e.Data = make(map[string]any)
		}
		e.Data[ConfHost] = h.host
		e.Data[ConfPort] = h.port
		e.Data[ConfUsername] = h.username
		e.Data[ConfPassword] = h.password
	}); err != nil {
		return flow.Result{}, err
	}

	return flow.Abort(ReasonReauthSuccess), nil
}

func (h *configFlow) reauthForm(errs map[string]string) flow.Result {
	result := flow.Form(StepReauthConfirm, credentialFields(h.username), errs)
	result.Placeholders = map[string]string{"host": h.host}
	return result
}

func (h *configFlow) stepImport(ctx context.Context, input flow.Input) (flow.Result, error) {
	h.readInput(input)

	device, code := h.connect(ctx)
	if code != "" {
		return flow.Abort(code), nil
	}

	if _, ok := h.hostConfigured(h.host); ok {
		return flow.Abort(flow.ReasonAlreadyConfigured), nil
	}

	return h.createEntry(device), nil
}

func userForm(errs map[string]string) flow.Result {
	return flow.Form(StepUser, []flow.Field{
		{Name: ConfHost, Type: "string", Default: fritzbox.DefaultHost},
		{Name: ConfPort, Type: "integer", Default: fritzbox.DefaultPort},
		{Name: ConfUsername, Type: "string", Required: true},
		{Name: ConfPassword, Type: "password", Required: true},
	}, errs)
}

func credentialFields(username string) []flow.Field {
	var def any
	if username != "" {
		def = username
	}
	return []flow.Field{
		{Name: ConfUsername, Type: "string", Required: true, Default: def},
		{Name: ConfPassword, Type: "password", Required: true},
	}
}

// hostPort renders the address used in log fields.
func hostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
