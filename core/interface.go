// Package core defines the interfaces a contract uses to talk to its host.
// Contract code only needs the types in this package.
package core

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Address identifies an account or a contract instance.
type Address [20]byte

// ObjectID identifies a state object.
type ObjectID [32]byte

type Hash [32]byte

var ZeroAddress = Address{}
var ZeroObjectID = ObjectID{}
var ZeroHash = Hash{}

func (id ObjectID) String() string {
	return hex.EncodeToString(id[:])
}

func (addr Address) String() string {
	return hex.EncodeToString(addr[:])
}

// MarshalText encodes the address as lowercase hex so JSON carries a string.
func (addr Address) MarshalText() ([]byte, error) {
	return []byte(addr.String()), nil
}

func (addr *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*addr = parsed
	return nil
}

// AddressFromString decodes a hex address, returning ZeroAddress when the
// input is not valid hex. Short inputs are right-aligned.
func AddressFromString(str string) Address {
	var addr Address
	b, err := hex.DecodeString(strings.TrimPrefix(str, "0x"))
	if err != nil || len(b) > len(addr) {
		return ZeroAddress
	}
	copy(addr[len(addr)-len(b):], b)
	return addr
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(strings.TrimPrefix(string(text), "0x"))
	if err != nil || len(b) != len(h) {
		return fmt.Errorf("%w: invalid hash %q", ErrInvalidArgument, text)
	}
	copy(h[:], b)
	return nil
}

func HashFromString(str string) Hash {
	var h Hash
	b, err := hex.DecodeString(strings.TrimPrefix(str, "0x"))
	if err != nil {
		return ZeroHash
	}
	copy(h[:], b)
	return h
}

// Context is the contract's view of the chain during one invocation.
type Context interface {
	BlockHeight() uint64      // current block height
	BlockTime() int64         // current block timestamp
	ContractAddress() Address // address of the executing contract instance
	Sender() Address          // caller of the current invocation

	// GetObject returns a state object. The zero ObjectID selects the
	// contract's default object.
	GetObject(id ObjectID) (Object, error)

	// Log emits a contract event.
	Log(eventName string, keyValues ...any)
}

// Object is a state record owned by a contract.
type Object interface {
	ID() ObjectID
	Owner() Address
	Contract() Address

	// Get decodes the stored field into value.
	Get(field string, value any) error
	// Set encodes value and stores it under field.
	Set(field string, value any) error
}
