package jwttoken

import (
	dErrors "guildledger/pkg/domain-errors"
	authmw "guildledger/pkg/platform/middleware/auth"
)

// JWTServiceAdapter lets the auth middleware validate principal tokens
// without depending on the jwt library.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has no subject")
	}
	return &authmw.JWTClaims{Subject: claims.Subject, JTI: claims.ID}, nil
}
