package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "guildledger/pkg/domain-errors"
)

const sampleAddress = "0x8ba1f109551bd432803012645ac136ddd64dba72"

// TestParseAddress_Invariants validates the parsing invariant:
// "addresses are 20 bytes of hex and never the zero address"
func TestParseAddress_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseAddress("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects short input", func(t *testing.T) {
		_, err := ParseAddress("0x1234")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects non-hex input", func(t *testing.T) {
		_, err := ParseAddress("0x" + strings.Repeat("zz", AddressLength))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects zero address", func(t *testing.T) {
		_, err := ParseAddress("0x" + strings.Repeat("00", AddressLength))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("normalizes case and prefix", func(t *testing.T) {
		upper, err := ParseAddress(strings.ToUpper(strings.TrimPrefix(sampleAddress, "0x")))
		require.NoError(t, err)
		lower, err := ParseAddress(sampleAddress)
		require.NoError(t, err)
		assert.Equal(t, lower, upper)
		assert.Equal(t, sampleAddress, upper.String())
	})
}

func TestAddressTextRoundTrip(t *testing.T) {
	a := MustParseAddress(sampleAddress)
	text, err := a.MarshalText()
	require.NoError(t, err)

	var b Address
	require.NoError(t, b.UnmarshalText(text))
	assert.Equal(t, a, b)

	t.Run("zero address survives json", func(t *testing.T) {
		type record struct {
			Creator Address `json:"creator"`
		}
		raw, err := json.Marshal(record{})
		require.NoError(t, err)
		assert.JSONEq(t, `{"creator":"0x0000000000000000000000000000000000000000"}`, string(raw))

		var decoded record
		require.NoError(t, json.Unmarshal(raw, &decoded))
		assert.True(t, decoded.Creator.IsZero())
	})

	t.Run("text and database decoders agree", func(t *testing.T) {
		var fromText, fromScan Address
		require.NoError(t, fromText.UnmarshalText(text))
		require.NoError(t, fromScan.Scan(string(text)))
		assert.Equal(t, fromText, fromScan)
	})

	t.Run("malformed text is rejected", func(t *testing.T) {
		var c Address
		err := c.UnmarshalText([]byte("0x1234"))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestDeriveAddress(t *testing.T) {
	creator := MustParseAddress(sampleAddress)

	t.Run("is deterministic", func(t *testing.T) {
		assert.Equal(t, DeriveAddress(creator, 7), DeriveAddress(creator, 7))
	})

	t.Run("differs per nonce and creator", func(t *testing.T) {
		other := MustParseAddress("0x00000000000000000000000000000000000000aa")
		assert.NotEqual(t, DeriveAddress(creator, 0), DeriveAddress(creator, 1))
		assert.NotEqual(t, DeriveAddress(creator, 0), DeriveAddress(other, 0))
	})

	t.Run("never yields the creator", func(t *testing.T) {
		assert.NotEqual(t, creator, DeriveAddress(creator, 0))
		assert.False(t, DeriveAddress(creator, 0).IsZero())
	})
}

func TestParseCategory(t *testing.T) {
	for _, c := range []string{"DeFi", "NFT", "Governance", "Infrastructure", "Education", "Gaming", "Other"} {
		parsed, err := ParseCategory(c)
		require.NoError(t, err, c)
		assert.Equal(t, c, parsed.String())
	}

	_, err := ParseCategory("defi")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), "matching is case sensitive")

	_, err = ParseCategory("")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestParseAssetID(t *testing.T) {
	for _, a := range RewardAssets() {
		parsed, err := ParseAssetID(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, parsed)
	}
	_, err := ParseAssetID("gold")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
