package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/Daskott/sentinel/server/auth/key"
	"github.com/stretchr/testify/assert"
)

func testKeyPair(t *testing.T) *key.KeyPair {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	assert.Nil(t, err)
	return &key.KeyPair{Kid: "test", PrivateKey: privateKey, PublicKey: &privateKey.PublicKey}
}

func TestEncodeAndDecodeJWT(t *testing.T) {
	keyPair := testKeyPair(t)

	token, err := EncodeJWT(NewTokenClaims("user-1", "Jane", "jane@example.com", time.Now()), keyPair)
	assert.Nil(t, err)

	claims, err := DecodeJWT(token, keyPair)
	assert.Nil(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "Jane", claims.Name)
	assert.Equal(t, ISSUER, claims.Issuer)
}

func TestDecodeJWTRejectsExpiredAndForeignTokens(t *testing.T) {
	keyPair := testKeyPair(t)

	expired, err := EncodeJWT(NewTokenClaims("user-1", "Jane", "", time.Now().Add(-2*TOKEN_TTL)), keyPair)
	assert.Nil(t, err)
	_, err = DecodeJWT(expired, keyPair)
	assert.NotNil(t, err)

	foreign, err := EncodeJWT(NewTokenClaims("user-1", "Jane", "", time.Now()), testKeyPair(t))
	assert.Nil(t, err)
	_, err = DecodeJWT(foreign, keyPair)
	assert.NotNil(t, err)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("secret")
	assert.Nil(t, err)
	assert.True(t, CheckPasswordHash("secret", hash))
	assert.False(t, CheckPasswordHash("Secret", hash))
}

func TestJWKRoundTrip(t *testing.T) {
	keyPair := testKeyPair(t)

	jwk, err := keyPair.JWK()
	assert.Nil(t, err)

	publicKey, err := key.PublicKeyFromJWK(jwk)
	assert.Nil(t, err)
	assert.Equal(t, keyPair.PublicKey.N, publicKey.N)
	assert.Len(t, key.ExportJWKAsJWKS(jwk).Keys, 1)
}
