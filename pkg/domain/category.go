package domain

import dErrors "guildledger/pkg/domain-errors"

// Category classifies a guild. The set is fixed; new categories require a
// code change so that stored records never hold an unknown value.
type Category string

const (
	CategoryDeFi           Category = "DeFi"
	CategoryNFT            Category = "NFT"
	CategoryGovernance     Category = "Governance"
	CategoryInfrastructure Category = "Infrastructure"
	CategoryEducation      Category = "Education"
	CategoryGaming         Category = "Gaming"
	CategoryOther          Category = "Other"
)

var validCategories = map[Category]bool{
	CategoryDeFi:           true,
	CategoryNFT:            true,
	CategoryGovernance:     true,
	CategoryInfrastructure: true,
	CategoryEducation:      true,
	CategoryGaming:         true,
	CategoryOther:          true,
}

// ParseCategory constructs a Category from external input. Matching is exact.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseCategory(s string) (Category, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "category cannot be empty")
	}
	c := Category(s)
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown category")
	}
	return c, nil
}

func (c Category) IsValid() bool {
	return validCategories[c]
}

func (c Category) String() string {
	return string(c)
}
