package testutil

import (
	"net/http"

	"guildledger/pkg/domain"
	authmw "guildledger/pkg/platform/middleware/auth"
)

// SubjectValidator accepts any bearer token and uses it as the subject, so a
// handler test authenticates by sending the caller address as the token.
type SubjectValidator struct{}

func (SubjectValidator) ValidateToken(token string) (*authmw.JWTClaims, error) {
	return &authmw.JWTClaims{Subject: token}, nil
}

// AsCaller authenticates req as caller under SubjectValidator.
func AsCaller(req *http.Request, caller domain.Address) *http.Request {
	req.Header.Set("Authorization", "Bearer "+caller.String())
	return req
}
