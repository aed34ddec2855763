package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// bearerSeparator splits the account id prefix from the random token.
// Account ids never contain it, so the first occurrence is the boundary.
const bearerSeparator = "_"

const tokenBytes = 32

// newBearer mints a cookie value of the form {accountID}_{token}.
func newBearer(accountID string) (bearer, token string, err error) {
	var b [tokenBytes]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", "", err
	}
	token = hex.EncodeToString(b[:])
	return accountID + bearerSeparator + token, token, nil
}

// splitBearer parses a cookie value. ok is false for anything that does
// not carry both an account id and a token.
func splitBearer(bearer string) (accountID, token string, ok bool) {
	accountID, token, found := strings.Cut(strings.TrimSpace(bearer), bearerSeparator)
	if !found || accountID == "" || token == "" {
		return "", "", false
	}
	return accountID, token, true
}

// sessionKey is the storage key for a token. Raw tokens are never persisted.
func sessionKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
