package domain

import (
	"database/sql/driver"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"

	dErrors "guildledger/pkg/domain-errors"
)

// AddressLength is the byte length of a principal address.
const AddressLength = 20

// Address identifies a principal: a wallet holder, a guild instance, or the
// registry authority itself. Addresses compare by value and render as
// lowercase 0x-prefixed hex.
//
// Usage: construct via ParseAddress at trust boundaries; the zero value is
// ZeroAddress and is never a valid holder, master or grantee.
type Address [AddressLength]byte

// ZeroAddress is the all-zero address.
var ZeroAddress Address

// ParseAddress constructs an Address from external input.
//
// Accepts 40 hex characters with or without the 0x prefix, in any case.
// Errors: returns CodeInvalidInput when the value is empty, malformed, or zero.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}, dErrors.New(dErrors.CodeInvalidInput, "address cannot be empty")
	}
	a, err := decodeHex(s)
	if err != nil {
		return Address{}, err
	}
	if a.IsZero() {
		return Address{}, dErrors.New(dErrors.CodeInvalidInput, "address cannot be the zero address")
	}
	return a, nil
}

// MustParseAddress is ParseAddress for constants and tests. It panics on invalid input.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// DeriveAddress computes the address of an instance created by creator with
// the given creation nonce: the last 20 bytes of Keccak-256(creator || nonce).
// The same (creator, nonce) pair always yields the same address.
func DeriveAddress(creator Address, nonce uint64) Address {
	var buf [AddressLength + 8]byte
	copy(buf[:AddressLength], creator[:])
	binary.BigEndian.PutUint64(buf[AddressLength:], nonce)

	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(buf[:])
	sum := h.Sum(nil)

	var a Address
	copy(a[:], sum[len(sum)-AddressLength:])
	return a
}

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes the form written by MarshalText, zero included.
// Request input goes through ParseAddress instead.
func (a *Address) UnmarshalText(text []byte) error {
	decoded, err := decodeHex(string(text))
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

// decodeHex reads 40 hex characters with an optional 0x prefix.
func decodeHex(s string) (Address, error) {
	raw := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	var a Address
	if len(raw) != AddressLength*2 {
		return a, dErrors.New(dErrors.CodeInvalidInput, "address must be 20 bytes of hex")
	}
	if _, err := hex.Decode(a[:], []byte(raw)); err != nil {
		return Address{}, dErrors.New(dErrors.CodeInvalidInput, "address must be 20 bytes of hex")
	}
	return a, nil
}

// Value stores the address as its hex string.
func (a Address) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan reads an address written by Value.
func (a *Address) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("scan address: unsupported type %T", src)
	}
	decoded, err := decodeHex(s)
	if err != nil {
		return fmt.Errorf("scan address: %w", err)
	}
	*a = decoded
	return nil
}
