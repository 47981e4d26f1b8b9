// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	pgerr "github.com/postgate-dev/postgate/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// New / Errorf
// ---------------------------------------------------------------------------

func TestNewIncludesCodeAndFields(t *testing.T) {
	err := pgerr.New(
		pgerr.CodeConfigValidateInvalidValue,
		"invalid admission configuration",
		pgerr.FieldKey("admission.daily_limit"),
		pgerr.Field("value", -1),
	)

	require.Error(t, err)
	assert.Equal(t, pgerr.CodeConfigValidateInvalidValue, pgerr.CodeOf(err))
	assert.True(t, pgerr.HasCode(err, pgerr.CodeConfigValidateInvalidValue))

	fields := pgerr.FieldsOf(err)
	assert.Equal(t, "admission.daily_limit", fields["key"])
	assert.Equal(t, -1, fields["value"])
}

func TestFieldHelpers(t *testing.T) {
	err := pgerr.Wrap(stderrors.New("boom"), pgerr.CodeActionPerformFailure, "performing action",
		pgerr.FieldInvocationID("inv-1"),
		pgerr.FieldItemURL("https://example.com/1"),
		pgerr.FieldBackend("sqlite"),
	)

	fields := pgerr.FieldsOf(err)
	assert.Equal(t, "inv-1", fields["invocation_id"])
	assert.Equal(t, "https://example.com/1", fields["item_url"])
	assert.Equal(t, "sqlite", fields["backend"])
}

func TestErrorfWrapsInnerError(t *testing.T) {
	inner := stderrors.New("disk full")
	err := pgerr.Errorf(pgerr.CodeStoreDocumentSaveFailure, "saving quota: %w", inner)
	require.Error(t, err)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, pgerr.CodeStoreDocumentSaveFailure, pgerr.CodeOf(err))
	assert.Contains(t, err.Error(), "saving quota")
}

// ---------------------------------------------------------------------------
// Wrap / Wrapf / With
// ---------------------------------------------------------------------------

func TestWrapPreservesWrappedErrorAndCode(t *testing.T) {
	root := stderrors.New("record missing")
	err := pgerr.Wrap(root, pgerr.CodeStoreDocumentNotFound, "loading document", pgerr.FieldKey("quota"))

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.True(t, pgerr.IsNotFound(err))
	assert.True(t, pgerr.IsStoreFailure(err))
	assert.Equal(t, "quota", pgerr.FieldsOf(err)["key"])
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, pgerr.Wrap(nil, pgerr.CodeServerInternalFailure, "ignored"))
	assert.NoError(t, pgerr.Wrapf(nil, pgerr.CodeServerInternalFailure, "ignored %s", "arg"))
	assert.NoError(t, pgerr.With(nil, pgerr.FieldKey("x")))
}

func TestWithOnPlainErrorDefaultsToInternalCode(t *testing.T) {
	enriched := pgerr.With(stderrors.New("something broke"), pgerr.FieldInvocationID("inv-1"))

	require.Error(t, enriched)
	assert.Equal(t, pgerr.CodeServerInternalFailure, pgerr.CodeOf(enriched))
	assert.Equal(t, "inv-1", pgerr.FieldsOf(enriched)["invocation_id"])
}

func TestCodeOfReturnsInnermostCodedError(t *testing.T) {
	inner := pgerr.New(pgerr.CodeStoreDocumentLoadFailure, "db")
	outer := pgerr.Wrap(inner, pgerr.CodeRunnerInvocationFailure, "run")
	assert.Equal(t, pgerr.CodeStoreDocumentLoadFailure, pgerr.CodeOf(outer))
	assert.True(t, pgerr.IsStoreFailure(outer))
}

func TestErrorIsWithWrappedChain(t *testing.T) {
	sentinel := stderrors.New("root cause")
	outer := pgerr.Wrap(fmt.Errorf("mid: %w", sentinel), pgerr.CodeServerInternalFailure, "handler")
	assert.ErrorIs(t, outer, sentinel)
}

func TestFieldsWithEmptyKeyAreIgnored(t *testing.T) {
	err := pgerr.New(pgerr.CodeStoreDatabaseFailure, "oops",
		pgerr.Field("", "should-be-dropped"),
		pgerr.FieldBackend("sqlite"),
	)
	fields := pgerr.FieldsOf(err)
	assert.Equal(t, "sqlite", fields["backend"])
	assert.NotContains(t, fields, "")
}

// ---------------------------------------------------------------------------
// Classification helpers
// ---------------------------------------------------------------------------

func TestClassificationAndStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		code   pgerr.Code
		status int
		check  func(error) bool
	}{
		{name: "document not found", code: pgerr.CodeStoreDocumentNotFound, status: 404, check: pgerr.IsNotFound},
		{name: "entity not found", code: pgerr.CodeServerEntityNotFound, status: 404, check: pgerr.IsNotFound},
		{name: "invocation locked", code: pgerr.CodeRunnerInvocationLocked, status: 409, check: pgerr.IsConflict},
		{name: "invalid value", code: pgerr.CodeConfigValidateInvalidValue, status: 400, check: pgerr.IsInvalidInput},
		{name: "invalid format", code: pgerr.CodeSourceInvalidFormat, status: 400, check: pgerr.IsInvalidInput},
		{name: "action timeout", code: pgerr.CodeActionTimeout, status: 504, check: pgerr.IsTimeout},
		{name: "store failure", code: pgerr.CodeStoreDocumentSaveFailure, status: 503, check: pgerr.IsStoreFailure},
		{name: "config error", code: pgerr.CodeConfigRequiredMissing, status: 400, check: pgerr.IsConfigError},
		{name: "internal", code: pgerr.CodeServerInternalFailure, status: 500, check: func(err error) bool { return !pgerr.IsNotFound(err) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pgerr.New(tt.code, "boom")
			assert.Equal(t, tt.status, pgerr.HTTPStatus(err))
			assert.True(t, tt.check(err))
		})
	}
}

func TestClassificationOnNilAndPlainErrors(t *testing.T) {
	for _, err := range []error{nil, stderrors.New("plain")} {
		assert.False(t, pgerr.IsNotFound(err))
		assert.False(t, pgerr.IsConflict(err))
		assert.False(t, pgerr.IsInvalidInput(err))
		assert.False(t, pgerr.IsTimeout(err))
		assert.False(t, pgerr.IsStoreFailure(err))
		assert.Equal(t, http.StatusInternalServerError, pgerr.HTTPStatus(err))
	}
}

func TestJoinCombinesErrors(t *testing.T) {
	a := stderrors.New("first")
	b := stderrors.New("second")
	joined := pgerr.Join(a, b)

	require.Error(t, joined)
	assert.ErrorIs(t, joined, a)
	assert.ErrorIs(t, joined, b)
	assert.Equal(t, pgerr.CodeServerInternalFailure, pgerr.CodeOf(joined))
}
