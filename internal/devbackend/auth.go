package devbackend

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/qrpay-labs/merchant-console/internal/crypto"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidToken is returned for any token that does not validate.
var ErrInvalidToken = errors.New("invalid token")

// Auth issues and validates access tokens and hashes merchant passwords.
type Auth struct {
	secret []byte
	ttl    time.Duration
}

// Claims represents JWT payload.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// NewAuth builds Auth. An empty secret is replaced with a random one, so tokens do not
// survive a restart.
func NewAuth(secret string, ttl time.Duration) (*Auth, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		generated, err := crypto.GenerateString(48)
		if err != nil {
			return nil, err
		}
		log.Printf("devbackend: no jwt secret configured, using an ephemeral one")
		secret = generated
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Auth{secret: []byte(secret), ttl: ttl}, nil
}

// Issue signs an access token for username.
func (a *Auth) Issue(username string) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Validate parses a token and returns its claims if valid.
func (a *Auth) Validate(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Username == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HashPassword bcrypt-hashes a password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a stored hash with a candidate password.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
