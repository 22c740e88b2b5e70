package core

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by storage lookups for missing keys.
var ErrNotFound = errors.New("not found")

// Error kinds. Every public operation returns errors drawn from this set;
// Data carries the kind-specific payload (an address, a balance, an id pair).
const (
	KindRuntimeError = "RuntimeError"

	// authorization
	KindUnauthorizedAddress       = "UnauthorizedAddress"
	KindUnauthorizedConfiguration = "UnauthorizedConfiguration"
	KindOnlyOwnerCanEvolve        = "OnlyOwnerCanEvolve"

	// validation
	KindTransferAmountMustBeHigherThanZero = "TransferAmountMustBeHigherThanZero"
	KindTransferFromAndToCannotBeEqual     = "TransferFromAndToCannotBeEqual"
	KindInvalidRate                        = "InvalidRate"
	KindInvalidFee                         = "InvalidFee"
	KindInvalidTokenId                     = "InvalidTokenId"
	KindInvalidScarcity                    = "InvalidScarcity"
	KindEvolveNotAllowed                   = "EvolveNotAllowed"

	// resource not found
	KindTokenNotFound      = "TokenNotFound"
	KindTokenDoesNotExist  = "TokenDoesNotExist"
	KindTokenOwnerNotFound = "TokenOwnerNotFound"
	KindOwnerHasNoVault    = "OwnerHasNoVault"
	KindPackNotFound       = "PackNotFound"
	KindShuffleNotFound    = "ShuffleNotFound"

	// conflict
	KindTokenAlreadyExists   = "TokenAlreadyExists"
	KindNftAlreadyPacked     = "NftAlreadyPacked"
	KindNftAlreadyInAShuffle = "NftAlreadyInAShuffle"
	KindNoNftAvailable       = "NoNftAvailable"

	// insufficient funds
	KindCallerBalanceNotEnough = "CallerBalanceNotEnough"
	KindOwnerBalanceNotEnough  = "OwnerBalanceNotEnough"

	// cross-contract
	KindErc1155Error      = "Erc1155Error"
	KindErc1155ReadFailed = "Erc1155ReadFailed"
	KindContractError     = "ContractError"
	KindParseError        = "ParseError"

	// lifecycle
	KindContractUninitialized      = "ContractUninitialized"
	KindContractAlreadyInitialized = "ContractAlreadyInitialized"
	KindContractIsPaused           = "ContractIsPaused"

	// batch structure
	KindEmptyBatch             = "EmptyBatch"
	KindForbiddenNestedBatch   = "ForbiddenNestedBatch"
	KindCannotMixeReadAndWrite = "CannotMixeReadAndWrite"
)

// Error is the typed error union shared by every contract. It serializes as
// {"kind": ..., "data": ...} and implements the error interface so handlers
// can return it directly.
type Error struct {
	Kind string `json:"kind"`
	Data any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e.Data == nil {
		return e.Kind
	}
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Data)
	}
	return fmt.Sprintf("%s: %s", e.Kind, data)
}

// Is matches errors by kind so callers can use errors.Is with a bare kind
// sentinel, e.g. errors.Is(err, &Error{Kind: KindTokenNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// AsError coerces any error into an *Error. Non-typed errors become
// RuntimeError with the message as data.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return ErrRuntime(err.Error())
}

// IsKind reports whether err is a typed Error with the given kind.
func IsKind(err error, kind string) bool {
	var typed *Error
	return errors.As(err, &typed) && typed.Kind == kind
}

func ErrRuntime(msg string) *Error {
	return &Error{Kind: KindRuntimeError, Data: msg}
}

func ErrUnauthorizedAddress(addr string) *Error {
	return &Error{Kind: KindUnauthorizedAddress, Data: addr}
}

func ErrUnauthorizedConfiguration() *Error {
	return &Error{Kind: KindUnauthorizedConfiguration}
}

func ErrOnlyOwnerCanEvolve() *Error {
	return &Error{Kind: KindOnlyOwnerCanEvolve}
}

func ErrEvolveNotAllowed() *Error {
	return &Error{Kind: KindEvolveNotAllowed}
}

func ErrTransferAmountMustBeHigherThanZero() *Error {
	return &Error{Kind: KindTransferAmountMustBeHigherThanZero}
}

func ErrTransferFromAndToCannotBeEqual() *Error {
	return &Error{Kind: KindTransferFromAndToCannotBeEqual}
}

func ErrInvalidRate() *Error {
	return &Error{Kind: KindInvalidRate}
}

func ErrInvalidFee() *Error {
	return &Error{Kind: KindInvalidFee}
}

func ErrInvalidTokenId(id string) *Error {
	return &Error{Kind: KindInvalidTokenId, Data: id}
}

func ErrInvalidScarcity(s string) *Error {
	return &Error{Kind: KindInvalidScarcity, Data: s}
}

func ErrTokenNotFound(id string) *Error {
	return &Error{Kind: KindTokenNotFound, Data: id}
}

func ErrTokenDoesNotExist(id string) *Error {
	return &Error{Kind: KindTokenDoesNotExist, Data: id}
}

func ErrTokenOwnerNotFound() *Error {
	return &Error{Kind: KindTokenOwnerNotFound}
}

func ErrOwnerHasNoVault(owner string) *Error {
	return &Error{Kind: KindOwnerHasNoVault, Data: owner}
}

func ErrPackNotFound(id string) *Error {
	return &Error{Kind: KindPackNotFound, Data: id}
}

func ErrShuffleNotFound(id string) *Error {
	return &Error{Kind: KindShuffleNotFound, Data: id}
}

func ErrTokenAlreadyExists(id string) *Error {
	return &Error{Kind: KindTokenAlreadyExists, Data: id}
}

func ErrNftAlreadyPacked(bundleID, baseID string) *Error {
	return &Error{Kind: KindNftAlreadyPacked, Data: [2]string{bundleID, baseID}}
}

func ErrNftAlreadyInAShuffle(bundleID, baseID string) *Error {
	return &Error{Kind: KindNftAlreadyInAShuffle, Data: [2]string{bundleID, baseID}}
}

func ErrNoNftAvailable(id string) *Error {
	return &Error{Kind: KindNoNftAvailable, Data: id}
}

func ErrCallerBalanceNotEnough(balance Amount) *Error {
	return &Error{Kind: KindCallerBalanceNotEnough, Data: balance.String()}
}

func ErrOwnerBalanceNotEnough(balance Amount) *Error {
	return &Error{Kind: KindOwnerBalanceNotEnough, Data: balance.String()}
}

func ErrErc1155ReadFailed() *Error {
	return &Error{Kind: KindErc1155ReadFailed}
}

func ErrContractUninitialized() *Error {
	return &Error{Kind: KindContractUninitialized}
}

func ErrContractAlreadyInitialized() *Error {
	return &Error{Kind: KindContractAlreadyInitialized}
}

func ErrContractIsPaused() *Error {
	return &Error{Kind: KindContractIsPaused}
}

func ErrEmptyBatch() *Error {
	return &Error{Kind: KindEmptyBatch}
}

func ErrForbiddenNestedBatch() *Error {
	return &Error{Kind: KindForbiddenNestedBatch}
}

func ErrCannotMixeReadAndWrite() *Error {
	return &Error{Kind: KindCannotMixeReadAndWrite}
}

// WrapForeign wraps an error returned by a foreign write so the calling
// contract can pattern-match on the inner kind. Typed rejections become
// Erc1155Error{ContractError, inner}; malformed nested actions become
// Erc1155Error{ParseError}.
func WrapForeign(err error) *Error {
	var typed *Error
	if errors.As(err, &typed) {
		return &Error{Kind: KindErc1155Error, Data: Error{Kind: KindContractError, Data: typed}}
	}
	return &Error{Kind: KindErc1155Error, Data: Error{Kind: KindParseError}}
}

// ForeignInner unwraps an Erc1155Error down to the target contract's own
// error, or nil if err is not a wrapped contract rejection.
func ForeignInner(err error) *Error {
	var typed *Error
	if !errors.As(err, &typed) || typed.Kind != KindErc1155Error {
		return nil
	}
	outer, ok := typed.Data.(Error)
	if !ok || outer.Kind != KindContractError {
		return nil
	}
	inner, ok := outer.Data.(*Error)
	if !ok {
		return nil
	}
	return inner
}
