package settlementd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
)

type contextKey string

const contextKeyCaller contextKey = "settlementd.caller"

var (
	errSecretMissing = errors.New("auth secret not configured")
	errBadSubject    = errors.New("subject is not an address")
)

// Authenticator validates HMAC signed bearer tokens. The subject claim is the
// caller's address.
type Authenticator struct {
	secret    []byte
	issuer    string
	audience  string
	clockSkew time.Duration
	logger    *slog.Logger
}

// NewAuthenticator constructs an Authenticator from configuration.
func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) (*Authenticator, error) {
	secret := strings.TrimSpace(cfg.HMACSecret)
	if secret == "" {
		return nil, errSecretMissing
	}
	if logger == nil {
		logger = slog.Default()
	}
	skew := cfg.ClockSkew.Duration
	if skew <= 0 {
		skew = 2 * time.Minute
	}
	return &Authenticator{
		secret:    []byte(secret),
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		clockSkew: skew,
		logger:    logger,
	}, nil
}

// Middleware rejects requests without a valid token and stores the caller
// address in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a == nil {
			writeError(w, http.StatusInternalServerError, "authentication unavailable")
			return
		}
		token := parseBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		caller, err := a.authenticate(token)
		if err != nil {
			a.logger.Debug("settlementd: token rejected", "error", err)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyCaller, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) authenticate(tokenString string) (ethcommon.Address, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.clockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return ethcommon.Address{}, err
	}
	if !token.Valid {
		return ethcommon.Address{}, errors.New("token invalid")
	}
	subject := strings.TrimSpace(claims.Subject)
	if !ethcommon.IsHexAddress(subject) {
		return ethcommon.Address{}, errBadSubject
	}
	return ethcommon.HexToAddress(subject), nil
}

// CallerFromContext returns the authenticated caller.
func CallerFromContext(ctx context.Context) (ethcommon.Address, bool) {
	caller, ok := ctx.Value(contextKeyCaller).(ethcommon.Address)
	return caller, ok
}

func parseBearerToken(header string) string {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return ""
	}
	parts := strings.SplitN(trimmed, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(strings.TrimSpace(parts[0]), "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// IssueToken signs a token for subject. Used by operators and tests.
func IssueToken(cfg AuthConfig, subject ethcommon.Address, ttl time.Duration) (string, error) {
	secret := strings.TrimSpace(cfg.HMACSecret)
	if secret == "" {
		return "", errSecretMissing
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject.Hex(),
		Issuer:    cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
