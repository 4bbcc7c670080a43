package auth

import (
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/dkoval/eventhub/internal/model"
)

var TokenSecretKey = os.Getenv("TOKEN_AUTH_SECRET")

// Principal is the already-authenticated caller every handler receives. Token
// issuance lives in the identity service; this package only verifies.
type Principal struct {
	UserID string
	Role   model.UserRole
}

type TokenClaims struct {
	Role model.UserRole `json:"role"`
	jwt.RegisteredClaims
}

func GenerateToken(userID string, role model.UserRole, dur time.Duration) (string, error) {
	claims := TokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(dur)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(TokenSecretKey))
}

func VerifyToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Wrap(ErrInvalidSigningMethod, token.Header["alg"].(string))
		}
		return []byte(TokenSecretKey), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*TokenClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// PrincipalFromToken verifies the token and returns the caller it encodes.
func PrincipalFromToken(tokenString string) (*Principal, error) {
	claims, err := VerifyToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &Principal{
		UserID: claims.Subject,
		Role:   claims.Role,
	}, nil
}
