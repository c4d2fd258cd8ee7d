package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/strkey"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	account := keypair.MustRandom().Address()

	var id [32]byte
	for i := range id {
		id[i] = byte(i)
	}
	contract := ContractAddress(id)

	tests := []struct {
		name       string
		in         string
		want       Address
		isContract bool
	}{
		{"account strkey", account, MustParseAddress(account), false},
		{"contract strkey", contract.String(), contract, true},
		{"bare hex", contract.Hex(), contract, true},
		{"prefixed hex", "0x" + contract.Hex(), contract, true},
		{"padded", "  " + contract.String() + "\n", contract, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddress(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.isContract, got.IsContract())
		})
	}

	require.Equal(t, account, MustParseAddress(account).String())
}

func TestParseAddress_Invalid(t *testing.T) {
	for _, in := range []string{
		"",
		"G123",
		"CBAD",
		strings.Repeat("zz", 32),
		strings.Repeat("01", 31),
	} {
		t.Run(fmt.Sprintf("%q", in), func(t *testing.T) {
			_, err := ParseAddress(in)
			require.ErrorIs(t, err, ErrInvalidAddress)
		})
	}
}

func TestAddress_IsZero(t *testing.T) {
	require.True(t, ZeroAddress.IsZero())
	require.True(t, AccountAddress([32]byte{}).IsZero())
	require.True(t, MustParseAddress(strings.Repeat("00", 32)).IsZero())
	require.False(t, ContractAddress([32]byte{31: 1}).IsZero())
}

func TestAddress_JSON(t *testing.T) {
	type holder struct {
		Addr Address `json:"addr"`
		Hash Hash32  `json:"hash"`
	}

	in := holder{
		Addr: ContractAddress([32]byte{0: 0xab}),
		Hash: HashTypeName("Token"),
	}
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"addr":"C`)
	require.Contains(t, string(raw), `"hash":"0x`)

	var out holder
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Equal(t, in, out)

	require.Error(t, json.Unmarshal([]byte(`{"addr":"nope"}`), &out))
}

func TestAddress_StringUsesVersion(t *testing.T) {
	key := [32]byte{1, 2, 3}

	acct := AccountAddress(key).String()
	decoded, err := strkey.Decode(strkey.VersionByteAccountID, acct)
	require.NoError(t, err)
	require.Equal(t, key[:], decoded)

	// unknown version bytes render as contracts
	odd := Address{Version: strkey.VersionByteSeed, Key: key}
	require.Equal(t, ContractAddress(key).String(), odd.String())
}

func TestHashTypeName(t *testing.T) {
	require.Equal(t, HashTypeName("Token"), HashTypeName("Token"))
	require.NotEqual(t, HashTypeName("Token"), HashTypeName("token"))

	h, err := ParseHash32(HashTypeName("Token").String())
	require.NoError(t, err)
	require.Equal(t, HashTypeName("Token"), h)
}

func TestErrorKind(t *testing.T) {
	require.Equal(t, "clone_exists", ErrorKind(fmt.Errorf("%w: at C...", ErrCloneExists)))
	require.Equal(t, "not_authorized", ErrorKind(ErrNotAuthorized))
	require.Equal(t, "internal", ErrorKind(fmt.Errorf("boom")))
}
