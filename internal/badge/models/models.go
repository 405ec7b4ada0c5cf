package models

import (
	"time"

	"guildledger/pkg/domain"
)

// Badge is one non-fungible reward token. Token ids are assigned
// sequentially from 1 and never reused.
type Badge struct {
	TokenID  uint64         `json:"token_id"`
	Owner    domain.Address `json:"owner"`
	Minter   domain.Address `json:"minter"`
	MintedAt time.Time      `json:"minted_at"`
}
