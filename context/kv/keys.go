package kv

import (
	"encoding/binary"

	"github.com/govm-net/counter/core"
)

// Key layout inside the state bucket. Every key starts with a one-byte
// prefix so that prefix scans never cross record kinds.
const (
	prefixObject = 'o'
	prefixField  = 'f'
	prefixEvent  = 'e'
	prefixMeta   = 'm'
)

// ObjectKey generates a key for storing an object's metadata.
// Format: 'o' + contract_address + object_id
func ObjectKey(contractAddr core.Address, objectID core.ObjectID) []byte {
	key := append([]byte{prefixObject}, contractAddr[:]...)
	return append(key, objectID[:]...)
}

// FieldKey generates a key for storing a field value.
// Format: 'f' + contract_address + object_id + field_name
func FieldKey(contractAddr core.Address, objectID core.ObjectID, field string) []byte {
	key := append([]byte{prefixField}, contractAddr[:]...)
	key = append(key, objectID[:]...)
	return append(key, []byte(field)...)
}

// EventPrefix generates the prefix under which a contract's events are stored.
// Format: 'e' + contract_address
func EventPrefix(contractAddr core.Address) []byte {
	return append([]byte{prefixEvent}, contractAddr[:]...)
}

// EventKey appends a big-endian sequence number to EventPrefix so that a
// cursor walks events in emission order.
func EventKey(contractAddr core.Address, seq uint64) []byte {
	key := EventPrefix(contractAddr)
	return binary.BigEndian.AppendUint64(key, seq)
}

// MetaKey generates a key for chain metadata such as the current block.
func MetaKey(name string) []byte {
	return append([]byte{prefixMeta}, []byte(name)...)
}
