// Package flow runs configuration flows: short, multi-step wizards that end
// either by creating (or updating) a config entry or by aborting. Each step
// of a flow returns a Result tagged form, create_entry or abort.
package flow

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"hubadapters/internal/entry"
)

// ResultType tags a step result.
type ResultType string

const (
	ResultForm        ResultType = "form"
	ResultCreateEntry ResultType = "create_entry"
	ResultAbort       ResultType = "abort"
)

// ErrorBase is the errors key for failures not tied to a single field.
const ErrorBase = "base"

// Abort reasons shared by all integrations.
const (
	ReasonAlreadyConfigured = "already_configured"
	ReasonAlreadyInProgress = "already_in_progress"
)

// Field describes one input of a form.
type Field struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Default  any      `json:"default,omitempty"`
	Choices  []string `json:"choices,omitempty"`
}

// Result is what a step returns. Which fields are set depends on Type:
// form carries StepID/Errors/Schema, create_entry carries Title/Data/Options,
// abort carries Reason.
type Result struct {
	Type         ResultType        `json:"type"`
	FlowID       string            `json:"flow_id"`
	Handler      string            `json:"handler"`
	StepID       string            `json:"step_id,omitempty"`
	Errors       map[string]string `json:"errors,omitempty"`
	Schema       []Field           `json:"data_schema,omitempty"`
	Placeholders map[string]string `json:"description_placeholders,omitempty"`
	Title        string            `json:"title,omitempty"`
	Data         map[string]any    `json:"data,omitempty"`
	Options      map[string]any    `json:"options,omitempty"`
	Reason       string            `json:"reason,omitempty"`

	// Entry is the entry created or updated by a create_entry result.
	Entry *entry.Entry `json:"result,omitempty"`
}

// Form asks the caller for (more) input on stepID.
func Form(stepID string, schema []Field, errs map[string]string) Result {
	return Result{
		Type:   ResultForm,
		StepID: stepID,
		Schema: schema,
		Errors: errs,
	}
}

// CreateEntry finishes the flow and creates an entry.
func CreateEntry(title string, data, options map[string]any) Result {
	return Result{
		Type:    ResultCreateEntry,
		Title:   title,
		Data:    data,
		Options: options,
	}
}

// Abort finishes the flow without creating anything.
func Abort(reason string) Result {
	return Result{
		Type:   ResultAbort,
		Reason: reason,
	}
}

// BaseError builds the errors map for a form-wide error code.
func BaseError(code string) map[string]string {
	return map[string]string{ErrorBase: code}
}

// AbortError lets helpers deep inside a step end the flow. The manager turns
// it into an abort result.
type AbortError struct {
	Reason string
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("flow aborted: %s", e.Reason)
}

// AbortReason reports whether err is (or wraps) an AbortError and returns its reason.
func AbortReason(err error) (string, bool) {
	var abortErr *AbortError
	if errors.As(err, &abortErr) {
		return abortErr.Reason, true
	}
	return "", false
}

// Input is the user (or discovery) data submitted to a step.
type Input map[string]any

// String returns the value under key as a string, or "" when missing.
// Numbers are rendered in decimal, so a numeric password survives.
func (in Input) String(key string) string {
	switch v := in[key].(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return v.String()
	}
	return ""
}

// Has reports whether key is present, even if its value is nil.
func (in Input) Has(key string) bool {
	_, ok := in[key]
	return ok
}

// Int coerces the value under key to an int. ok is false when the key is
// missing or the value cannot be read as an integer.
func (in Input) Int(key string) (int, bool) {
	switch v := in[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int(v), true
	case string:
		i, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}
