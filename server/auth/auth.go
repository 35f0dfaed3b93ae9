package auth

import (
	"fmt"
	"time"

	"github.com/Daskott/sentinel/server/auth/key"
	"github.com/golang-jwt/jwt"
	"golang.org/x/crypto/bcrypt"
)

const (
	ISSUER    = "sentinel"
	TOKEN_TTL = 7 * 24 * time.Hour
)

// PasswordHashCost is the bcrypt cost used for new password hashes
var PasswordHashCost = 14

type SentinelTokenClaims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	jwt.StandardClaims
}

func NewTokenClaims(userID, name, email string, now time.Time) SentinelTokenClaims {
	return SentinelTokenClaims{
		Name:  name,
		Email: email,
		StandardClaims: jwt.StandardClaims{
			Subject:   userID,
			Issuer:    ISSUER,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(TOKEN_TTL).Unix(),
		},
	}
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), PasswordHashCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

func EncodeJWT(claims SentinelTokenClaims, keyPair *key.KeyPair) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod("RS256"), claims)
	token.Header["kid"] = keyPair.Kid

	tokenString, err := token.SignedString(keyPair.PrivateKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func DecodeJWT(tokenString string, keyPair *key.KeyPair) (*SentinelTokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SentinelTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		// validate the alg is what you expect:
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		return keyPair.PublicKey, nil
	})

	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid jwt: %v", err)
	}

	tokenClaims, ok := token.Claims.(*SentinelTokenClaims)
	if !ok {
		return nil, fmt.Errorf("unable to assert token.Claims to SentinelTokenClaims")
	}

	return tokenClaims, nil
}
