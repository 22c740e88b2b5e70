package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorKinds(t *testing.T) {
	err := ErrCallerBalanceNotEnough(NewAmount(7))
	require.Equal(t, KindCallerBalanceNotEnough, err.Kind)
	require.Equal(t, "7", err.Data)
	require.True(t, IsKind(err, KindCallerBalanceNotEnough))
	require.False(t, IsKind(err, KindOwnerBalanceNotEnough))
}

func TestAsError(t *testing.T) {
	typed := ErrTokenNotFound("PTY")
	require.Same(t, typed, AsError(typed))

	wrapped := fmt.Errorf("context: %w", typed)
	require.Same(t, typed, AsError(wrapped))

	plain := AsError(errors.New("boom"))
	require.Equal(t, KindRuntimeError, plain.Kind)
	require.Equal(t, "boom", plain.Data)

	require.Nil(t, AsError(nil))
}

func TestWrapForeign(t *testing.T) {
	inner := ErrUnauthorizedAddress("mallory")
	wrapped := WrapForeign(inner)
	require.Equal(t, KindErc1155Error, wrapped.Kind)

	got := ForeignInner(wrapped)
	require.NotNil(t, got)
	require.Equal(t, KindUnauthorizedAddress, got.Kind)
	require.Equal(t, "mallory", got.Data)

	// malformed nested actions surface as ParseError with no inner kind
	parse := WrapForeign(errors.New("unexpected end of JSON input"))
	require.Equal(t, KindErc1155Error, parse.Kind)
	require.Nil(t, ForeignInner(parse))
}

func TestFunctionDiscriminant(t *testing.T) {
	fn, err := Function([]byte(`{"function":"transfer","qty":"1"}`))
	require.NoError(t, err)
	require.Equal(t, "transfer", fn)

	_, err = Function([]byte(`{"qty":"1"}`))
	require.Error(t, err)

	_, err = Function([]byte(`{`))
	require.Error(t, err)
}

func TestMarshalAction(t *testing.T) {
	raw, err := MarshalAction("transfer", map[string]any{"target": "bob", "qty": "5"})
	require.NoError(t, err)

	fn, err := Function(raw)
	require.NoError(t, err)
	require.Equal(t, "transfer", fn)

	var decoded struct {
		Target string `json:"target"`
		Qty    string `json:"qty"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "bob", decoded.Target)
	require.Equal(t, "5", decoded.Qty)
}
