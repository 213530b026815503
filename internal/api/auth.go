package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	tokenCookieKey = "token"
	bearerPrefix   = "Bearer "

	userIdClaim   = "user-id"
	usernameClaim = "username"
	expClaim      = "exp"
)

var errNoToken = errors.New("no session token")

type contextKey string

const sessionKey contextKey = "session"

// Session is the identity carried by a verified token.
type Session struct {
	UserId   string
	Username string
}

func WithSession(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

func SessionFrom(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(sessionKey).(Session)
	return sess, ok
}

// tokenFromRequest prefers the session cookie over an Authorization header.
func tokenFromRequest(r *http.Request) (string, error) {
	if c, err := r.Cookie(tokenCookieKey); err == nil && c.Value != "" {
		return c.Value, nil
	}

	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, bearerPrefix) {
		if tok := strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix)); tok != "" {
			return tok, nil
		}
	}

	return "", errNoToken
}

// CreateToken signs a session token for the given user.
func CreateToken(signingKey []byte, userId, username string, exp time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim:   userId,
		usernameClaim: username,
		expClaim:      time.Now().Add(exp).Unix(),
	})

	return token.SignedString(signingKey)
}

func verifyToken(signingKey []byte, tokenString string) (Session, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return signingKey, nil
	})
	if err != nil {
		return Session{}, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return Session{}, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Session{}, fmt.Errorf("invalid token claims")
	}

	var sess Session
	switch v := claims[userIdClaim].(type) {
	case string:
		sess.UserId = v
	case float64:
		sess.UserId = strconv.FormatInt(int64(v), 10)
	}
	if sess.UserId == "" {
		return Session{}, fmt.Errorf("invalid user id claim")
	}

	sess.Username, _ = claims[usernameClaim].(string)
	if sess.Username == "" {
		sess.Username = sess.UserId
	}

	return sess, nil
}
