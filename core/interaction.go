package core

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Interaction is one entry of the ordered feed: a caller invoking one action
// on one contract. Interactions are applied sequentially in feed order;
// replaying the same sequence reproduces the same state bit for bit.
type Interaction struct {
	ID       string          `json:"id"`
	Contract string          `json:"contract"`
	Caller   string          `json:"caller"`
	Height   int64           `json:"height"`
	Random   string          `json:"random,omitempty"`
	Input    json.RawMessage `json:"input"`
}

// ResultKind classifies what an action did.
type ResultKind string

const (
	ResultWrite ResultKind = "write"
	ResultRead  ResultKind = "read"
	ResultNone  ResultKind = "none"
)

// Result is the success payload of an action. Write results carry no body,
// read results carry the queried value.
type Result struct {
	Kind ResultKind `json:"kind"`
	Body any        `json:"body,omitempty"`
}

// WriteResult reports a completed state mutation.
func WriteResult() *Result { return &Result{Kind: ResultWrite} }

// ReadResult wraps a read-only view value.
func ReadResult(body any) *Result { return &Result{Kind: ResultRead, Body: body} }

// NoneResult reports an action that had nothing to do.
func NoneResult() *Result { return &Result{Kind: ResultNone} }

// Receipt records the outcome of one applied interaction. Failed
// interactions are recorded too; they occupy a sequence number but change
// no state.
type Receipt struct {
	Seq           int64   `json:"seq"`
	InteractionID string  `json:"interaction_id"`
	Contract      string  `json:"contract"`
	Height        int64   `json:"height"`
	OK            bool    `json:"ok"`
	Result        *Result `json:"result,omitempty"`
	Err           *Error  `json:"error,omitempty"`
}

// Function extracts the "function" discriminant of an action payload.
func Function(input json.RawMessage) (string, error) {
	var env struct {
		Function string `json:"function"`
	}
	if err := json.Unmarshal(input, &env); err != nil {
		return "", fmt.Errorf("decode action: %w", err)
	}
	if env.Function == "" {
		return "", fmt.Errorf("action has no function field")
	}
	return env.Function, nil
}

// MarshalAction encodes args as a JSON object and sets its "function" field,
// producing the flat tagged form every contract expects on the wire.
func MarshalAction(function string, args any) (json.RawMessage, error) {
	obj := map[string]json.RawMessage{}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("action args must encode to an object: %w", err)
		}
	}
	fn, err := json.Marshal(function)
	if err != nil {
		return nil, err
	}
	obj["function"] = fn
	return json.Marshal(obj)
}

// SortedKeys returns the keys of m in ascending order. Handlers iterate maps
// through this so every run visits entries in the same order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
