package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Credential is the opaque bearer token supplied by the session layer.
// Its presence or absence drives connect/disconnect; this package never
// issues or refreshes it.
type Credential string

func (c Credential) Empty() bool { return c == "" }

// Identity is the current user as seen by the chat engine. Needed to tell
// self-sent messages apart for unread accounting.
type Identity struct {
	UserID   int
	Nickname string
}

// Claims mirrors the subset of the token payload the engine reads.
type Claims struct {
	UserID   int    `json:"user_id"`
	Nickname string `json:"nickname"`
	jwt.RegisteredClaims
}

// Identify extracts the user identity from the bearer token without verifying
// the signature. Validity is the remote service's concern; every REST and
// transport call carries the token and is rejected there if it is bad.
func Identify(c Credential) (Identity, error) {
	if c.Empty() {
		return Identity{}, fmt.Errorf("identify: empty credential")
	}

	var claims Claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(string(c), &claims); err != nil {
		return Identity{}, fmt.Errorf("identify: %w", err)
	}
	return Identity{UserID: claims.UserID, Nickname: claims.Nickname}, nil
}
