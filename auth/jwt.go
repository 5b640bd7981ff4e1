package auth

import (
	"context"
	"fmt"
	"log"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// accessClaims is the claim set the REST tier signs into access tokens.
// The `userId` claim carries the authenticated identity; the optional
// `jti` is used for revocation checks.
type accessClaims struct {
	UserID uuid.UUID `json:"userId"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS512-signed access tokens and, when a Redis
// client is configured, rejects tokens found on the revocation list.
type JWTVerifier struct {
	secret            []byte
	revocationListKey string
	redisClient       *redis.Client
}

// NewJWTVerifier creates a verifier. redisClient may be nil, in which
// case revocation checks are skipped.
func NewJWTVerifier(secret string, revocationListKey string, redisClient *redis.Client) *JWTVerifier {
	return &JWTVerifier{
		secret:            []byte(secret),
		revocationListKey: revocationListKey,
		redisClient:       redisClient,
	}
}

// VerifyToken parses and validates an access token. It checks the
// signature, the standard claims (expiry), and the revocation list.
// Every failure mode collapses into ErrInvalidToken; the caller treats
// authentication as a yes/no question.
func (v *JWTVerifier) VerifyToken(ctx context.Context, tokenString string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &accessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || claims.UserID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: missing userId claim", ErrInvalidToken)
	}

	revoked, err := v.isTokenRevoked(ctx, claims.ID)
	if err != nil {
		// A Redis outage must not lock every user out; log and fail open.
		log.Printf("Failed to check token revocation status: %v", err)
	}
	if revoked {
		return uuid.Nil, fmt.Errorf("%w: token has been revoked", ErrInvalidToken)
	}

	return claims.UserID, nil
}

// isTokenRevoked checks whether a token ID (jti) is on the Redis
// revocation list. Tokens without a jti cannot be revoked.
func (v *JWTVerifier) isTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if v.redisClient == nil || jti == "" {
		return false, nil
	}

	key := fmt.Sprintf("%s:%s", v.revocationListKey, jti)
	exists, err := v.redisClient.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis command failed: %w", err)
	}
	return exists == 1, nil
}
