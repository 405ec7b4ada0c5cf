package domain

import dErrors "guildledger/pkg/domain-errors"

// AssetID names a reward asset whose mint rights are tracked by the
// permission registry.
type AssetID string

const (
	// AssetReputation is the fungible reputation balance.
	AssetReputation AssetID = "reputation"
	// AssetBadge is the non-fungible badge token.
	AssetBadge AssetID = "badge"
)

// RewardAssets lists every asset a guild is granted mint rights on.
func RewardAssets() []AssetID {
	return []AssetID{AssetReputation, AssetBadge}
}

func ParseAssetID(s string) (AssetID, error) {
	a := AssetID(s)
	if !a.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown asset")
	}
	return a, nil
}

func (a AssetID) IsValid() bool {
	return a == AssetReputation || a == AssetBadge
}

func (a AssetID) String() string {
	return string(a)
}
