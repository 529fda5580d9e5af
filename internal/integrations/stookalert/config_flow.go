package stookalert

import (
	"context"

	"hubadapters/internal/flow"
	rivm "hubadapters/internal/stookalert"

	"go.uber.org/zap"
)

// ConfProvince is the entry data key holding the province.
const ConfProvince = "province"

type configFlow struct {
	flow   *flow.Flow
	logger *zap.Logger
}

func (h *configFlow) Step(ctx context.Context, stepID string, input flow.Input) (flow.Result, error) {
	switch stepID {
	case "user":
		return h.stepUser(ctx, input)
	case "import":
		h.logger.Warn("Configuring stookalert in the settings file is deprecated; the imported entry can now be managed through the API",
			zap.String("province", input.String(ConfProvince)))
		return h.stepUser(ctx, input)
	}
	return flow.Abort("not_supported"), nil
}

func (h *configFlow) stepUser(ctx context.Context, input flow.Input) (flow.Result, error) {
	if input == nil {
		return userForm(nil), nil
	}

	province := input.String(ConfProvince)
	if !rivm.IsProvince(province) {
		return userForm(map[string]string{ConfProvince: "invalid_province"}), nil
	}

	if err := h.flow.SetUniqueID(province); err != nil {
		return flow.Result{}, err
	}
	if err := h.flow.AbortIfUniqueIDConfigured(ctx, nil); err != nil {
		return flow.Result{}, err
	}

	return flow.CreateEntry(province, map[string]any{ConfProvince: province}, nil), nil
}

func userForm(errs map[string]string) flow.Result {
	return flow.Form("user", []flow.Field{{
		Name:     ConfProvince,
		Type:     "select",
		Required: true,
		Choices:  rivm.Provinces,
	}}, errs)
}
