package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/stellar/go/strkey"
)

// Address identifies an account (caller) or a deployed object (contract).
// Accounts carry the account version byte (G...), objects the contract version byte (C...).
type Address struct {
	Version strkey.VersionByte
	Key     [32]byte
}

// ZeroAddress is the null identifier. It is never a valid implementation or template.
var ZeroAddress = Address{Version: strkey.VersionByteContract}

// ContractAddress builds a contract address from a raw 32-byte id
func ContractAddress(id [32]byte) Address {
	return Address{Version: strkey.VersionByteContract, Key: id}
}

// AccountAddress builds an account address from an ed25519 public key
func AccountAddress(pub [32]byte) Address {
	return Address{Version: strkey.VersionByteAccountID, Key: pub}
}

// IsZero reports whether the address key is all zero bytes, regardless of kind
func (a Address) IsZero() bool {
	return a.Key == [32]byte{}
}

// IsContract reports whether the address names a deployed object
func (a Address) IsContract() bool {
	return a.Version == strkey.VersionByteContract
}

// String returns the strkey form of the address
func (a Address) String() string {
	version := a.Version
	if version != strkey.VersionByteAccountID {
		version = strkey.VersionByteContract
	}
	encoded, err := strkey.Encode(version, a.Key[:])
	if err != nil {
		return hex.EncodeToString(a.Key[:])
	}
	return encoded
}

// Hex returns the raw key as lowercase hex
func (a Address) Hex() string {
	return hex.EncodeToString(a.Key[:])
}

// MarshalText implements encoding.TextMarshaler
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses a G... account strkey, a C... contract strkey or 64 hex characters
// (optionally 0x-prefixed) which are read as a contract id.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}, fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}

	if strings.HasPrefix(s, "G") {
		raw, err := strkey.Decode(strkey.VersionByteAccountID, s)
		if err != nil {
			return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		var key [32]byte
		copy(key[:], raw)
		return AccountAddress(key), nil
	}

	if strings.HasPrefix(s, "C") {
		raw, err := strkey.Decode(strkey.VersionByteContract, s)
		if err != nil {
			return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		var key [32]byte
		copy(key[:], raw)
		return ContractAddress(key), nil
	}

	key, err := decodeHex32(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q is neither a strkey nor a 32-byte hex id", ErrInvalidAddress, s)
	}
	return ContractAddress(key), nil
}

// MustParseAddress is ParseAddress for constants and tests
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Hash32 is a fixed-size 32-byte value (salts, commit hashes, type keys)
type Hash32 [32]byte

// String returns the 0x-prefixed hex form
func (h Hash32) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// MarshalText implements encoding.TextMarshaler
func (h Hash32) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (h *Hash32) UnmarshalText(text []byte) error {
	parsed, err := ParseHash32(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash32 parses 64 hex characters, optionally 0x-prefixed
func ParseHash32(s string) (Hash32, error) {
	key, err := decodeHex32(s)
	if err != nil {
		return Hash32{}, err
	}
	return Hash32(key), nil
}

// TypeKey is the storage key of a contract type: sha256 of its name
type TypeKey = Hash32

// CommitHash tags one implementation build. Unique across the whole registry.
type CommitHash = Hash32

// Salt is the caller-chosen input to clone address derivation
type Salt = Hash32

// HashTypeName derives the type key for a contract type name
func HashTypeName(name string) TypeKey {
	return TypeKey(sha256.Sum256([]byte(name)))
}

func decodeHex32(s string) ([32]byte, error) {
	var out [32]byte
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(s) != 64 {
		return out, fmt.Errorf("expected 64 hex characters, got %d", len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("invalid hex: %w", err)
	}
	copy(out[:], raw)
	return out, nil
}
