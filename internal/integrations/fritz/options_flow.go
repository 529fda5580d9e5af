package fritz

import (
	"context"

	"hubadapters/internal/entry"
	"hubadapters/internal/flow"
)

const (
	// DefaultConsiderHome is how long, in seconds, a device may be unseen
	// before it is marked away.
	DefaultConsiderHome = 180

	// MaxConsiderHome bounds the consider_home option.
	MaxConsiderHome = 900
)

type optionsFlow struct {
	entry *entry.Entry
}

func (h *optionsFlow) Step(_ context.Context, stepID string, input flow.Input) (flow.Result, error) {
	if stepID != flow.StepInit {
		return flow.Abort("not_supported"), nil
	}

	current := h.entry.OptionInt(ConfConsiderHome, DefaultConsiderHome)
	if input == nil {
		return initForm(current, nil), nil
	}

	value, ok := current, true
	if input.Has(ConfConsiderHome) {
		value, ok = input.Int(ConfConsiderHome)
	}
	if !ok {
		return initForm(current, map[string]string{ConfConsiderHome: ErrorInvalidConsider}), nil
	}

	return flow.CreateEntry("", map[string]any{
		ConfConsiderHome: clampConsiderHome(value),
	}, nil), nil
}

func clampConsiderHome(v int) int {
	return min(max(v, 0), MaxConsiderHome)
}

func initForm(current int, errs map[string]string) flow.Result {
	return flow.Form(flow.StepInit, []flow.Field{{
		Name:    ConfConsiderHome,
		Type:    "integer",
		Default: current,
	}}, errs)
}
