package counter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/govm-net/counter/core"
)

type InstantiateMsg struct {
	CounterValue uint64 `json:"counter_value"`
}

// Empty is the payload of variants that carry no fields.
type Empty struct{}

type ResetMsg struct {
	Value uint64 `json:"value"`
}

// UnmarshalJSON rejects bodies without counter_value; a missing or null
// field must not decode as zero.
func (m *InstantiateMsg) UnmarshalJSON(data []byte) error {
	var raw struct {
		CounterValue *uint64 `json:"counter_value"`
	}
	if err := decodeStrict(data, &raw); err != nil {
		return err
	}
	if raw.CounterValue == nil {
		return missingField("counter_value")
	}
	m.CounterValue = *raw.CounterValue
	return nil
}

func (m *ResetMsg) UnmarshalJSON(data []byte) error {
	var raw struct {
		Value *uint64 `json:"value"`
	}
	if err := decodeStrict(data, &raw); err != nil {
		return err
	}
	if raw.Value == nil {
		return missingField("value")
	}
	m.Value = *raw.Value
	return nil
}

func missingField(name string) error {
	return fmt.Errorf("%w: missing field %q", core.ErrInvalidMessage, name)
}

// ExecuteMsg is an externally tagged union: exactly one field is set,
// e.g. {"increment":{}} or {"reset":{"value":5}}.
type ExecuteMsg struct {
	Increment *Empty    `json:"increment,omitempty"`
	Decrement *Empty    `json:"decrement,omitempty"`
	Reset     *ResetMsg `json:"reset,omitempty"`
}

// QueryMsg is an externally tagged union like ExecuteMsg.
type QueryMsg struct {
	Value *Empty `json:"value,omitempty"`
	Owner *Empty `json:"owner,omitempty"`
}

type ValueResp struct {
	Value uint64 `json:"value"`
}

type OwnerResp struct {
	Owner core.Address `json:"owner"`
}

func (m ExecuteMsg) variants() int {
	n := 0
	for _, set := range []bool{m.Increment != nil, m.Decrement != nil, m.Reset != nil} {
		if set {
			n++
		}
	}
	return n
}

func (m QueryMsg) variants() int {
	n := 0
	for _, set := range []bool{m.Value != nil, m.Owner != nil} {
		if set {
			n++
		}
	}
	return n
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, core.ErrInvalidMessage) {
			return err
		}
		return fmt.Errorf("%w: %v", core.ErrInvalidMessage, err)
	}
	if err := dec.Decode(&json.RawMessage{}); err != io.EOF {
		return fmt.Errorf("%w: trailing data", core.ErrInvalidMessage)
	}
	return nil
}

func DecodeInstantiateMsg(data []byte) (InstantiateMsg, error) {
	var msg InstantiateMsg
	err := decodeStrict(data, &msg)
	return msg, err
}

// DecodeExecuteMsg rejects unknown variants and messages that do not carry
// exactly one variant.
func DecodeExecuteMsg(data []byte) (ExecuteMsg, error) {
	var msg ExecuteMsg
	if err := decodeStrict(data, &msg); err != nil {
		return msg, err
	}
	if n := msg.variants(); n != 1 {
		return msg, fmt.Errorf("%w: expected exactly one execute variant, got %d", core.ErrInvalidMessage, n)
	}
	return msg, nil
}

func DecodeQueryMsg(data []byte) (QueryMsg, error) {
	var msg QueryMsg
	if err := decodeStrict(data, &msg); err != nil {
		return msg, err
	}
	if n := msg.variants(); n != 1 {
		return msg, fmt.Errorf("%w: expected exactly one query variant, got %d", core.ErrInvalidMessage, n)
	}
	return msg, nil
}
