// Package errors attaches machine-readable codes to agentmon errors.
package errors

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
// Codes are dotted paths whose last segment is the reason.
type Code string

const (
	CodeConfigLoadFailure          Code = "config.load.failure"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeMonitorThresholdsInvalid Code = "monitor.thresholds.invalid"
	CodeMonitorAgentNotFound     Code = "monitor.agent.not_found"
	CodeMonitorAgentConflict     Code = "monitor.agent.conflict"

	CodeAlertNotFound      Code = "alert.not_found"
	CodeAlertSuppressed    Code = "alert.trigger.suppressed"
	CodeAlertInvalidInput  Code = "alert.trigger.invalid_input"
	CodeAlertNotifyFailure Code = "alert.notify.failure"

	CodeServerStartFailure    Code = "server.start.failure"
	CodeServerShutdownFailure Code = "server.shutdown.failure"

	CodeCLIRequestFailure  Code = "cli.request.failure"
	CodeCLIResponseInvalid Code = "cli.response.invalid"

	CodeTelemetrySetupFailure Code = "telemetry.setup.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldAgent(value string) Attr {
	return Field("agent", value)
}

func FieldAlertID(value string) Attr {
	return Field("alert_id", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// CodeOf returns the code attached to err, or "" for plain errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

// FieldsOf returns the structured context attached to err.
func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsConflict(err error) bool {
	return reason(CodeOf(err)) == "conflict"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value"
}

func IsSuppressed(err error) bool {
	return reason(CodeOf(err)) == "suppressed"
}

func reason(code Code) string {
	if code == "" {
		return ""
	}
	s := string(code)
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[i+1:]
	}
	return s
}

func flatten(fields []Attr) []any {
	out := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		out = append(out, f.Key, f.Value)
	}
	return out
}
