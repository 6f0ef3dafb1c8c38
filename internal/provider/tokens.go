package provider

import (
	"crypto/rand"
	"encoding/base64"
)

// Opaque identifier prefixes. They make leaked credentials recognizable in
// logs and bug reports; the wire contract is only that values are unique
// and unguessable.
const (
	clientIDPrefix     = "crn_"
	clientSecretPrefix = "crns_"
	codePrefix         = "crnauth_"
	accessTokenPrefix  = "crnat_"
	refreshTokenPrefix = "crnrt_"
)

const (
	clientIDBytes = 16
	secretBytes   = 32
	codeBytes     = 32
	tokenBytes    = 32
)

// newOpaque returns prefix plus n bytes of CSPRNG output, URL-safe
// base64-encoded without padding.
func newOpaque(prefix string, n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + base64.RawURLEncoding.EncodeToString(b), nil
}

func newClientID() (string, error)     { return newOpaque(clientIDPrefix, clientIDBytes) }
func newClientSecret() (string, error) { return newOpaque(clientSecretPrefix, secretBytes) }
func newAuthCode() (string, error)     { return newOpaque(codePrefix, codeBytes) }
func newAccessToken() (string, error)  { return newOpaque(accessTokenPrefix, tokenBytes) }
func newRefreshToken() (string, error) { return newOpaque(refreshTokenPrefix, tokenBytes) }
