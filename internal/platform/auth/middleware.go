package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const userKey contextKey = "acting_user"

type Claims struct {
	jwt.RegisteredClaims
	Name      string `json:"name,omitempty"`
	Role      string `json:"role"`
	PatientID string `json:"patient_id,omitempty"`
	SessionID string `json:"sid,omitempty"`
}

type JWTConfig struct {
	Issuer     string
	Audience   string
	SigningKey []byte
	// Revocations, when set, rejects logged-out sessions.
	Revocations *SessionRevocations
}

// User converts verified claims into the acting user.
func (c *Claims) User() (User, error) {
	u := User{ID: c.Subject, Name: c.Name, Role: Role(c.Role), SessionID: c.SessionID}
	if u.ID == "" {
		return User{}, fmt.Errorf("token has no subject")
	}
	if !u.Role.Valid() {
		return User{}, fmt.Errorf("unknown role %q", c.Role)
	}
	if c.PatientID != "" {
		id, err := uuid.Parse(c.PatientID)
		if err != nil {
			return User{}, fmt.Errorf("invalid patient_id claim: %w", err)
		}
		u.PatientID = id
	}
	if u.Role == RolePatient && u.PatientID == uuid.Nil {
		return User{}, fmt.Errorf("paciente token requires patient_id")
	}
	return u, nil
}

// IssueToken signs an HS256 token for user. Used by tooling and tests.
func IssueToken(cfg JWTConfig, user User, ttl time.Duration) (string, error) {
	if ttl <= 0 || ttl > MaxTokenTTL {
		return "", fmt.Errorf("token ttl must be in (0, %s], got %s", MaxTokenTTL, ttl)
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name:      user.Name,
		Role:      string(user.Role),
		SessionID: user.SessionID,
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	if user.PatientID != uuid.Nil {
		claims.PatientID = user.PatientID.String()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.SigningKey)
}

func parseToken(cfg JWTConfig, tokenStr string) (User, *Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	}, opts...)
	if err != nil || !token.Valid {
		return User{}, nil, fmt.Errorf("invalid token")
	}
	if claims.IssuedAt != nil && claims.ExpiresAt != nil &&
		claims.ExpiresAt.Sub(claims.IssuedAt.Time) > MaxTokenTTL {
		return User{}, nil, fmt.Errorf("token lifetime exceeds %s", MaxTokenTTL)
	}
	u, err := claims.User()
	return u, claims, err
}

func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return strings.TrimSpace(parts[1]), nil
}

func setUser(c echo.Context, u User) {
	c.SetRequest(c.Request().WithContext(WithUser(c.Request().Context(), u)))
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr, err := bearerToken(c)
			if err != nil {
				return err
			}
			u, claims, err := parseToken(cfg, tokenStr)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if cfg.Revocations != nil {
				var issued time.Time
				if claims.IssuedAt != nil {
					issued = claims.IssuedAt.Time
				}
				if cfg.Revocations.IsRevoked(u, issued) {
					return echo.NewHTTPError(http.StatusUnauthorized, "token revoked")
				}
			}
			setUser(c, u)
			return next(c)
		}
	}
}

// DevUser is the identity DevAuthMiddleware assigns to anonymous requests.
var DevUser = User{ID: "dev-user", Name: "Development", Role: RoleAdmin, SessionID: "dev-session"}

// DevAuthMiddleware lets unauthenticated requests through as DevUser for
// development. A bearer token, when present, is still verified.
func DevAuthMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	strict := JWTMiddleware(cfg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		verified := strict(next)
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") != "" {
				return verified(c)
			}
			setUser(c, DevUser)
			return next(c)
		}
	}
}

func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func UserFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userKey).(User)
	return u, ok
}
