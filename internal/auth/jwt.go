package auth

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/ayushdsd/spotlight-sub000/internal/logger"
	"github.com/ayushdsd/spotlight-sub000/internal/models"
)

// Issuer is stamped on every token and required on validation
const Issuer = "spotlight"

var (
	ErrInvalidToken = errors.New("invalid token")

	// Read from the environment at start-up; InitJWTKey replaces it once
	// config has been loaded, and tests set their own.
	jwtKey   = []byte(os.Getenv("JWT_SECRET"))
	tokenTTL = 24 * time.Hour
	log      = logger.New("auth")

	parser = jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
)

// InitJWTKey sets the HMAC secret used to sign and verify tokens
func InitJWTKey(key []byte) {
	jwtKey = key
}

// SetTokenTTL changes how long newly issued tokens stay valid
func SetTokenTTL(ttl time.Duration) {
	if ttl > 0 {
		tokenTTL = ttl
	}
}

// JWTClaims are the bearer token contents. Subject mirrors UserID.
type JWTClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken issues a token for user and returns it with its expiry
func GenerateToken(user *models.User) (string, time.Time, error) {
	if user == nil {
		return "", time.Time{}, errors.New("user cannot be nil")
	}
	if _, err := uuid.Parse(user.ID); err != nil {
		return "", time.Time{}, errors.New("user ID must be a valid UUID")
	}

	issuedAt := time.Now()
	expiry := issuedAt.Add(tokenTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &JWTClaims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	})

	signed, err := token.SignedString(jwtKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiry, nil
}

// ValidateToken checks signature, algorithm, expiry and issuer
func ValidateToken(tokenString string) (*JWTClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	claims := &JWTClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return jwtKey, nil
	})
	if err != nil {
		log.Debug("Token validation error: %v", err)
		return nil, err
	}
	if !token.Valid || !claims.VerifyIssuer(Issuer, true) {
		log.Warn("Rejected token for subject %q", claims.Subject)
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GetUserIDFromToken returns the canonical user id carried by claims
func GetUserIDFromToken(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims cannot be nil")
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
