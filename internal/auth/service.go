// internal/auth/service.go
// Identity collaborator boundary: this service only validates bearer
// credentials issued elsewhere. Account creation and token issuance are
// external to this system.

package auth

import (
	"context"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v4"

	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/common/apperrors"
)

// Claims carries the identity attached to a validated credential
type Claims struct {
	UserID      int64
	Username    string
	DisplayName string
	Type        string // "access" or "refresh"
}

// Service validates bearer credentials
type Service interface {
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// Config holds auth configuration
type Config struct {
	JWTSecret string
}

type service struct {
	config *Config
}

// NewService creates a new auth service
func NewService(config *Config) Service {
	return &service{config: config}
}

// ValidateToken parses and verifies a JWT, returning its identity claims
func (s *service) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	})
	if err != nil {
		return nil, apperrors.Auth("invalid or expired token")
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, apperrors.Auth("invalid token")
	}

	claims := &Claims{}

	// user_id may be encoded as a string or a JSON number
	switch v := mapClaims["user_id"].(type) {
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, apperrors.Auth("invalid user_id in token")
		}
		claims.UserID = id
	case float64:
		claims.UserID = int64(v)
	default:
		return nil, apperrors.Auth("missing user_id in token")
	}

	if username, ok := mapClaims["username"].(string); ok {
		claims.Username = username
	}
	if displayName, ok := mapClaims["display_name"].(string); ok {
		claims.DisplayName = displayName
	}
	if tokenType, ok := mapClaims["type"].(string); ok {
		claims.Type = tokenType
	} else {
		claims.Type = "access"
	}

	return claims, nil
}
