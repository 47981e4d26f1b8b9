// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeStoreDocumentLoadFailure Code = "store.document.load.failure"
	CodeStoreDocumentSaveFailure Code = "store.document.save.failure"
	CodeStoreDocumentNotFound    Code = "store.document.get.not_found"
	CodeStoreDocumentInvalid     Code = "store.document.decode.invalid_format"
	CodeStoreDatabaseFailure     Code = "store.database.failure"
	CodeStoreBackendUnsupported  Code = "store.backend.unsupported"
	CodeStoreInvalidInput        Code = "store.invalid_input"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"
	CodeConfigRequiredMissing      Code = "config.required.invalid_value"

	CodeActionPerformFailure Code = "action.perform.failure"
	CodeActionTimeout        Code = "action.perform.timeout"
	CodeActionInvalidInput   Code = "action.item.invalid_input"

	CodeSourceFetchFailure  Code = "source.fetch.failure"
	CodeSourceInvalidFormat Code = "source.parse.invalid_format"

	CodeAlertDispatchFailure Code = "alert.dispatch.failure"
	CodeAlertSinkUnsupported Code = "alert.sink.invalid_value"

	CodeRunnerInvocationLocked  Code = "runner.invocation.conflict"
	CodeRunnerInvocationFailure Code = "runner.invocation.failure"

	CodeReportRenderFailure Code = "report.render.failure"
	CodeReportFormatInvalid Code = "report.format.invalid_input"

	CodeTelemetryPushFailure Code = "telemetry.push.failure"

	CodeRedactRuleInvalid Code = "redact.rule.invalid"

	CodeScheduleInvalid Code = "schedule.spec.invalid_input"

	CodeServerRequestInvalid  Code = "server.request.invalid"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerEntityNotFound  Code = "server.entity.not_found"
	CodeServerConfigInvalid   Code = "server.config.invalid"
	CodeServerStartFailure    Code = "server.start.failure"

	CodeCLISetupFailure Code = "cli.setup.failure"
	CodeCLIInputInvalid Code = "cli.input.invalid"
	CodeCLIServerDown   Code = "cli.server.unavailable"

	CodeSecretInvalidInput   Code = "secret.input.invalid_input"
	CodeSecretNotFound       Code = "secret.get.not_found"
	CodeSecretStoreFailure   Code = "secret.store.failure"
	CodeSecretDeleteFailure  Code = "secret.delete.failure"
	CodeSecretListFailure    Code = "secret.list.failure"
	CodeSecretResolveFailure Code = "secret.resolve.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field attaches key=value context to an error.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

// FieldKey names the store document an error concerns.
func FieldKey(value string) Attr { return Field("key", value) }

// FieldInvocationID tags an error with the invocation it belongs to.
func FieldInvocationID(value string) Attr { return Field("invocation_id", value) }

func FieldItemURL(value string) Attr { return Field("item_url", value) }

func FieldBackend(value string) Attr { return Field("backend", value) }

// New returns a coded error carrying fields.
func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

// Errorf returns a coded error with a formatted message. A %w verb keeps
// the wrapped error reachable through errors.Is and CodeOf.
func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

// Wrap annotates err with code, msg and fields. A nil err stays nil.
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

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

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
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

// IsStoreFailure reports whether err came from the persisted store. Store
// failures abort an invocation because state consistency is no longer known.
func IsStoreFailure(err error) bool {
	return strings.HasPrefix(string(CodeOf(err)), "store.")
}

// IsConfigError reports whether err is a configuration problem.
func IsConfigError(err error) bool {
	return strings.HasPrefix(string(CodeOf(err)), "config.")
}

func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case IsStoreFailure(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
