package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // address derivation needs exactly 20 bytes
)

// GetHash calculates the SHA-256 hash of data
func GetHash(data []byte) Hash {
	return sha256.Sum256(data)
}

// ParseAddress converts a 40-character hex string (optional 0x prefix) to an Address.
func ParseAddress(s string) (Address, error) {
	var addr Address
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 2*len(addr) {
		return addr, fmt.Errorf("%w: address must be %d hex characters, got %d", ErrInvalidArgument, 2*len(addr), len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return addr, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	copy(addr[:], b)
	return addr, nil
}

// NamedAddress derives a deterministic address from a human-readable name,
// as RIPEMD160(SHA256(name)). Test harnesses and the CLI use it for
// accounts like "sender" or "alice".
func NamedAddress(name string) Address {
	return DeriveAddress([]byte(name))
}

// DeriveAddress hashes data into an address as RIPEMD160(SHA256(data)).
func DeriveAddress(data []byte) Address {
	sum := sha256.Sum256(data)
	h := ripemd160.New()
	h.Write(sum[:])
	var addr Address
	copy(addr[:], h.Sum(nil))
	return addr
}

// ResolveAddress accepts either a hex address or a name understood by NamedAddress.
func ResolveAddress(s string) Address {
	if addr, err := ParseAddress(s); err == nil {
		return addr
	}
	return NamedAddress(s)
}
