package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when no credential was presented.
	ErrMissingToken = errors.New("missing token")
	// ErrMalformedToken is returned for a bad scheme prefix or a structurally broken token.
	ErrMalformedToken = errors.New("malformed token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
	// ErrInvalidSignature is returned when the signature does not verify against the secret.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrInvalidToken is returned for otherwise unusable tokens, such as one without a user identity.
	ErrInvalidToken = errors.New("invalid token")
)

// Rejection reasons reported to clients.
const (
	ReasonAbsent    = "absent"
	ReasonMalformed = "malformed"
	ReasonExpired   = "expired"
	ReasonInvalid   = "invalid"
)

// Reason maps an authentication error to its wire category.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrMissingToken):
		return ReasonAbsent
	case errors.Is(err, ErrMalformedToken):
		return ReasonMalformed
	case errors.Is(err, ErrExpiredToken):
		return ReasonExpired
	default:
		return ReasonInvalid
	}
}

// Config holds token settings.
type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// Claims carries the user identity in "id", the claim name clients already issue.
type Claims struct {
	UserID string `json:"id,omitempty"`
	jwt.RegisteredClaims
}

// Manager signs and verifies HS256 bearer tokens.
type Manager struct {
	config Config
	parser *jwt.Parser
}

func NewManager(config Config) *Manager {
	return &Manager{
		config: config,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

// Issue mints a token for userID.
func (m *Manager) Issue(userID string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.config.Secret))
}

// ExtractBearer strips an optional "Bearer " prefix from a raw credential.
func ExtractBearer(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrMissingToken
	}

	parts := strings.Fields(raw)
	switch len(parts) {
	case 1:
		if strings.EqualFold(parts[0], "bearer") {
			return "", ErrMalformedToken
		}
		return parts[0], nil
	case 2:
		if !strings.EqualFold(parts[0], "bearer") {
			return "", ErrMalformedToken
		}
		return parts[1], nil
	default:
		return "", ErrMalformedToken
	}
}

// Verify checks the token signature and expiry and returns the bound user id.
func (m *Manager) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrMissingToken
	}

	claims := &Claims{}
	_, err := m.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return []byte(m.config.Secret), nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenMalformed):
			return "", ErrMalformedToken
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return "", ErrInvalidSignature
		default:
			return "", ErrInvalidToken
		}
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return "", ErrInvalidToken
	}
	return userID, nil
}

// VerifyCredential extracts and verifies a raw credential as presented by a client.
func (m *Manager) VerifyCredential(raw string) (string, error) {
	token, err := ExtractBearer(raw)
	if err != nil {
		return "", err
	}
	return m.Verify(token)
}
