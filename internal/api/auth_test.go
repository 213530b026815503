package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionFrom(t *testing.T) {
	tcases := []struct {
		name     string
		ctx      context.Context
		session  Session
		expected bool
	}{
		{
			name:     "no session",
			ctx:      context.Background(),
			expected: false,
		},
		{
			name:     "session set",
			ctx:      WithSession(context.Background(), Session{UserId: "u1", Username: "alice"}),
			session:  Session{UserId: "u1", Username: "alice"},
			expected: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			sess, ok := SessionFrom(tc.ctx)
			assert.Equal(t, tc.expected, ok)
			assert.Equal(t, tc.session, sess)
		})
	}
}

func Test_tokenFromRequest(t *testing.T) {
	tcases := []struct {
		name     string
		cookie   string
		header   string
		expected string
		err      error
	}{
		{"cookie", "cookie-token", "", "cookie-token", nil},
		{"bearer header", "", "Bearer header-token", "header-token", nil},
		{"cookie wins", "cookie-token", "Bearer header-token", "cookie-token", nil},
		{"basic auth ignored", "", "Basic Zm9vOmJhcg==", "", errNoToken},
		{"empty bearer", "", "Bearer   ", "", errNoToken},
		{"nothing", "", "", "", errNoToken},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: tc.cookie})
			}
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}

			tok, err := tokenFromRequest(req)
			assert.Equal(t, tc.expected, tok)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func Test_verifyToken(t *testing.T) {
	sign := func(claims jwt.MapClaims, key []byte) string {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
		require.NoError(t, err)
		return tok
	}
	future := time.Now().Add(time.Hour).Unix()

	valid, err := CreateToken(testSigningKey, "u1", "alice", time.Hour)
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		userIdClaim: "u1",
		expClaim:    future,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tcases := []struct {
		name     string
		token    string
		expected Session
		wantErr  bool
	}{
		{"valid", valid, Session{UserId: "u1", Username: "alice"}, false},
		{"numeric user id", sign(jwt.MapClaims{userIdClaim: 42, expClaim: future}, testSigningKey), Session{UserId: "42", Username: "42"}, false},
		{"expired", sign(jwt.MapClaims{userIdClaim: "u1", expClaim: time.Now().Add(-time.Hour).Unix()}, testSigningKey), Session{}, true},
		{"wrong key", sign(jwt.MapClaims{userIdClaim: "u1", expClaim: future}, []byte("other")), Session{}, true},
		{"missing user id", sign(jwt.MapClaims{usernameClaim: "alice", expClaim: future}, testSigningKey), Session{}, true},
		{"none algorithm", noneAlg, Session{}, true},
		{"garbage", "not.a.token", Session{}, true},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			sess, err := verifyToken(testSigningKey, tc.token)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, sess)
		})
	}
}
