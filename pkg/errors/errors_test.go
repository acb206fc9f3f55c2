package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CarriesCodeAndMessage(t *testing.T) {
	err := New(ErrCodeUnresolved, "could not resolve concept")

	assert.Equal(t, ErrCodeUnresolved, err.Code)
	assert.Contains(t, err.Error(), "RES_001")
	assert.Contains(t, err.Error(), "could not resolve concept")
	assert.NotEmpty(t, err.Stack)
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "should be nil"))
}

func TestWrap_PreservesCodeForUnknown(t *testing.T) {
	inner := New(ErrCodeSchemaError, "column missing")
	wrapped := Wrap(inner, ErrCodeUnknown, "aggregate failed")

	assert.Equal(t, ErrCodeSchemaError, wrapped.Code)
	assert.True(t, stderrors.Is(wrapped, wrapped))
	assert.ErrorIs(t, wrapped, inner)
}

func TestWrap_ChainTraversal(t *testing.T) {
	root := fmt.Errorf("connection refused")
	mid := Wrap(root, ErrCodeResolverUnavailable, "lookup request failed")
	top := Wrap(mid, ErrCodeUnresolved, "retry budget exhausted")

	assert.True(t, IsCode(top, ErrCodeUnresolved))
	assert.True(t, IsCode(top, ErrCodeResolverUnavailable))
	assert.False(t, IsCode(top, ErrCodeSchemaError))
	assert.ErrorIs(t, top, root)
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, CodeOK, GetCode(nil))
	assert.Equal(t, ErrCodeUnknown, GetCode(fmt.Errorf("plain error")))
	assert.Equal(t, ErrCodeEmptyInput, GetCode(New(ErrCodeEmptyInput, "no tables")))
}

func TestWithDetail(t *testing.T) {
	base := New(ErrCodeInvalidInput, "empty name")
	detailed := base.WithDetail("row 42")

	require.NotNil(t, detailed)
	assert.Empty(t, base.Detail)
	assert.Equal(t, "row 42", detailed.Detail)
	assert.Contains(t, detailed.Error(), "row 42")

	var nilErr *AppError
	assert.Nil(t, nilErr.WithDetail("x"))
}

func TestSchemaError_NamesMissingColumns(t *testing.T) {
	err := SchemaError([]string{"normalized_id", "provenance"})

	assert.Equal(t, ErrCodeSchemaError, err.Code)
	assert.Contains(t, err.Detail, "normalized_id")
	assert.Contains(t, err.Detail, "provenance")
}

func TestIsRowLevel(t *testing.T) {
	assert.True(t, IsRowLevel(ErrCodeUnresolved))
	assert.True(t, IsRowLevel(ErrCodeTagMalformed))
	assert.False(t, IsRowLevel(ErrCodeSchemaError))
	assert.False(t, IsRowLevel(ErrCodeEmptyInput))
}

func TestModuleForCode(t *testing.T) {
	assert.Equal(t, "RES", ModuleForCode(ErrCodeUnresolved))
	assert.Equal(t, "MRG", ModuleForCode(ErrCodeEmptyInput))
	assert.Equal(t, "COMMON", ModuleForCode(ErrCodeInternal))
}
