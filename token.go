package household

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// SessionClaims are the access token claims issued by the identity provider
type SessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// TokenValidator turns a provider access token into a Session
type TokenValidator interface {
	SessionFromToken(tokenString string) (*Session, error)
}

// TokenValidatorFunc adapts a function into a TokenValidator.
type TokenValidatorFunc func(tokenString string) (*Session, error)

// SessionFromToken satisfies the TokenValidator interface.
func (f TokenValidatorFunc) SessionFromToken(tokenString string) (*Session, error) {
	if f == nil {
		return nil, ErrTokenMalformed
	}
	return f(tokenString)
}

// TokenServiceOption customizes the token service.
type TokenServiceOption func(*TokenService)

// WithTokenIssuer sets the expected and issued iss claim.
func WithTokenIssuer(issuer string) TokenServiceOption {
	return func(ts *TokenService) {
		ts.issuer = issuer
	}
}

// WithTokenAudience sets the expected and issued aud claim.
func WithTokenAudience(audience ...string) TokenServiceOption {
	return func(ts *TokenService) {
		ts.audience = jwt.ClaimStrings(audience)
	}
}

// WithTokenTTL sets the lifetime of issued tokens.
func WithTokenTTL(ttl time.Duration) TokenServiceOption {
	return func(ts *TokenService) {
		if ttl > 0 {
			ts.ttl = ttl
		}
	}
}

// WithTokenLogger overrides the token service logger.
func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenService) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// WithTokenClock injects a custom clock (useful for tests).
func WithTokenClock(clock func() time.Time) TokenServiceOption {
	return func(ts *TokenService) {
		if clock != nil {
			ts.now = clock
		}
	}
}

// TokenService validates HMAC signed provider tokens. Issue exists for
// providers that run in process and for tests.
type TokenService struct {
	signingKey []byte
	issuer     string
	audience   jwt.ClaimStrings
	ttl        time.Duration
	logger     Logger
	now        func() time.Time
}

// NewTokenService returns a token service for signingKey
func NewTokenService(signingKey []byte, opts ...TokenServiceOption) *TokenService {
	ts := &TokenService{
		signingKey: signingKey,
		ttl:        time.Hour,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}
	if ts.logger == nil {
		ts.logger = defLogger{name: "household.token"}
	}
	return ts
}

// Issue signs an access token for session. Guest sessions never get one.
func (ts *TokenService) Issue(session *Session) (string, error) {
	if session == nil || session.SubjectID == "" {
		return "", goerrors.New("session must not be empty", goerrors.CategoryBadInput)
	}
	if session.Guest {
		return "", goerrors.New("guest sessions are local", goerrors.CategoryBadInput)
	}

	issuedAt := session.AuthenticatedAt
	if issuedAt.IsZero() {
		issuedAt = ts.now()
	}

	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   session.SubjectID,
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ts.ttl)),
		},
		Email: session.Email,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}
	return signed, nil
}

// SessionFromToken validates tokenString and returns the session it carries
func (ts *TokenService) SessionFromToken(tokenString string) (*Session, error) {
	parserOptions := []jwt.ParserOption{jwt.WithTimeFunc(ts.now)}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("token service encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, goerrors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode).
			WithCode(ErrTokenMalformed.Code)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		ts.logger.Error("token service could not decode session claims")
		return nil, ErrTokenMalformed
	}

	if !ts.acceptsAudience(claims.Audience) {
		ts.logger.Warn("token service rejected audience", "aud", []string(claims.Audience))
		return nil, ErrTokenMalformed
	}

	session := &Session{
		SubjectID:   claims.Subject,
		Email:       claims.Email,
		AccessToken: tokenString,
	}
	if claims.IssuedAt != nil {
		session.AuthenticatedAt = claims.IssuedAt.Time
	}
	return session, nil
}

// acceptsAudience reports whether aud names one of the configured audiences.
// Without configured audiences every token is accepted.
func (ts *TokenService) acceptsAudience(aud jwt.ClaimStrings) bool {
	if len(ts.audience) == 0 {
		return true
	}
	for _, want := range ts.audience {
		if slices.Contains(aud, want) {
			return true
		}
	}
	return false
}

// IsTokenExpired checks for an expired access token
func IsTokenExpired(err error) bool {
	return hasTextCode(err, TextCodeTokenExpired)
}

// IsTokenMalformed checks for an undecodable access token
func IsTokenMalformed(err error) bool {
	return hasTextCode(err, TextCodeTokenMalformed)
}
