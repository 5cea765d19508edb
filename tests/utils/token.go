package testutil

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// OrgClaim is the claim board-api reads the organization from by default.
const OrgClaim = "org_id"

// TestToken returns a signed JWT suitable for test mode authentication. The
// token carries orgID in the organization claim so board requests are scoped.
func TestToken(userID, orgID string) (string, error) {
	secret := os.Getenv("TEST_JWT_SECRET")
	if secret == "" {
		return "", errors.New("TEST_JWT_SECRET must be set")
	}
	return SignedToken([]byte(secret), userID, orgID, time.Hour)
}

// SignedToken signs an HS256 token for userID in orgID that expires after ttl.
// An empty orgID omits the organization claim.
func SignedToken(secret []byte, userID, orgID string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  userID,
		"name": userID,
		"exp":  time.Now().Add(ttl).Unix(),
	}
	if orgID != "" {
		claims[OrgClaim] = orgID
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
