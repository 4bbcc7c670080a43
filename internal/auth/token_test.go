package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoval/eventhub/internal/model"
)

const testSecretKey = "test-secret-key-for-predictable-results"

func TestGenerateToken(t *testing.T) {
	TokenSecretKey = testSecretKey

	tests := []struct {
		name     string
		userID   string
		role     model.UserRole
		duration time.Duration
	}{
		{
			name:     "success: generate valid participant token",
			userID:   "user-1",
			role:     model.UserRoleParticipant,
			duration: time.Hour,
		},
		{
			name:     "success: generate valid admin token",
			userID:   "admin-1",
			role:     model.UserRoleAdmin,
			duration: 30 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokenString, err := GenerateToken(tt.userID, tt.role, tt.duration)
			require.NoError(t, err)
			require.NotEmpty(t, tokenString)

			claims, err := VerifyToken(tokenString)
			require.NoError(t, err)
			assert.Equal(t, tt.userID, claims.Subject)
			assert.Equal(t, tt.role, claims.Role)
			assert.WithinDuration(t, time.Now().Add(tt.duration), claims.ExpiresAt.Time, time.Second*5)
		})
	}
}

func TestVerifyToken(t *testing.T) {
	TokenSecretKey = testSecretKey

	validToken, _ := GenerateToken("user-1", model.UserRoleParticipant, time.Hour)

	expiredToken, _ := GenerateToken("user-1", model.UserRoleParticipant, -time.Hour)

	claimsWithWrongMethod := TokenClaims{
		Role: model.UserRoleParticipant,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tokenWithWrongMethod := jwt.NewWithClaims(jwt.SigningMethodNone, claimsWithWrongMethod)
	wrongMethodTokenString, _ := tokenWithWrongMethod.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name              string
		tokenString       string
		secretSetup       func()
		secretRollback    func()
		expectError       bool
		expectedErrorType error
		expectedRole      model.UserRole
	}{
		{
			name:         "success: verify valid token",
			tokenString:  validToken,
			expectError:  false,
			expectedRole: model.UserRoleParticipant,
		},
		{
			name:              "failure: verify expired token",
			tokenString:       expiredToken,
			expectError:       true,
			expectedErrorType: jwt.ErrTokenExpired,
		},
		{
			name:              "failure: verify token with invalid signature",
			tokenString:       validToken,
			secretSetup:       func() { TokenSecretKey = "different-secret-key" },
			secretRollback:    func() { TokenSecretKey = testSecretKey },
			expectError:       true,
			expectedErrorType: jwt.ErrTokenSignatureInvalid,
		},
		{
			name:              "failure: verify malformed token",
			tokenString:       "not-a-valid-jwt-token",
			expectError:       true,
			expectedErrorType: jwt.ErrTokenMalformed,
		},
		{
			name:              "failure: verify token with wrong signing method",
			tokenString:       wrongMethodTokenString,
			expectError:       true,
			expectedErrorType: ErrInvalidSigningMethod,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.secretSetup != nil {
				tt.secretSetup()
			}
			if tt.secretRollback != nil {
				defer tt.secretRollback()
			}

			claims, err := VerifyToken(tt.tokenString)

			if tt.expectError {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.expectedErrorType)
				assert.Nil(t, claims)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, claims)
				assert.Equal(t, tt.expectedRole, claims.Role)
			}
		})
	}
}

func TestPrincipalFromToken(t *testing.T) {
	TokenSecretKey = testSecretKey

	validAdminToken, _ := GenerateToken("admin-1", model.UserRoleAdmin, time.Hour)
	expiredToken, _ := GenerateToken("user-1", model.UserRoleParticipant, -time.Hour)

	noSubjectClaims := TokenClaims{
		Role: model.UserRoleParticipant,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	noSubjectToken := jwt.NewWithClaims(jwt.SigningMethodHS256, noSubjectClaims)
	noSubjectTokenString, _ := noSubjectToken.SignedString([]byte(testSecretKey))

	tests := []struct {
		name              string
		tokenString       string
		expectError       bool
		expectedPrincipal *Principal
	}{
		{
			name:        "success: valid token",
			tokenString: validAdminToken,
			expectedPrincipal: &Principal{
				UserID: "admin-1",
				Role:   model.UserRoleAdmin,
			},
		},
		{
			name:        "failure: expired token",
			tokenString: expiredToken,
			expectError: true,
		},
		{
			name:        "failure: token without subject",
			tokenString: noSubjectTokenString,
			expectError: true,
		},
		{
			name:        "failure: invalid token string",
			tokenString: "invalid-token",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			principal, err := PrincipalFromToken(tt.tokenString)

			if tt.expectError {
				require.Error(t, err)
				assert.Nil(t, principal)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expectedPrincipal, principal)
			}
		})
	}
}
