package role

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// relayClaims carries the relay-id claim that heartbeat and negotiation
// frames send as a signed token in their relay-id part, so a forged
// frame from an unrecognized peer is rejected before the tiebreak ever
// runs. The negotiation header part is not signed.
type relayClaims struct {
	jwt.RegisteredClaims
	RelayID string `json:"relay_id"`
}

// SignRelayID signs relayID as a JWT using secret, for inclusion in a
// heartbeat or negotiation frame.
func SignRelayID(secret []byte, relayID string) (string, error) {
	claims := relayClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
		RelayID: relayID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("role: sign relay-id: %w", err)
	}
	return signed, nil
}

// VerifyRelayID checks tokenString against secret and returns the
// claimed relay-id.
func VerifyRelayID(secret []byte, tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &relayClaims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("role: verify relay-id: %w", err)
	}
	claims, ok := token.Claims.(*relayClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("role: verify relay-id: invalid token")
	}
	return claims.RelayID, nil
}

// Decide implements the negotiation tiebreak: the side with the
// strictly newer last-update timestamp wins; on an exact tie, the
// lexicographically greater header wins.
func Decide(ourHeader string, ourLastUpdate time.Time, peerHeader string, peerLastUpdate time.Time) bool {
	if ourLastUpdate.After(peerLastUpdate) {
		return true
	}
	if ourLastUpdate.Before(peerLastUpdate) {
		return false
	}
	return ourHeader > peerHeader
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
