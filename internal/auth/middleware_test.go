package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/texttospeech/internal/account"
	"github.com/nikhilbhutani/texttospeech/internal/account/accounttest"
	"github.com/nikhilbhutani/texttospeech/internal/models"
)

func whoAmI() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := account.UserFromContext(r.Context())
		if u == nil {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.Write([]byte(u.Username))
	})
}

func call(t *testing.T, h http.Handler, authorization string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/text-to-speech", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()
	store := accounttest.NewStore()
	svc := NewService(store, testSecret, 0)
	sess, err := svc.Register(context.Background(), "dave", "password123", "")
	require.NoError(t, err)

	h := NewJWTMiddleware(testSecret, store, nil, 0).Authenticate(whoAmI())

	rec := call(t, h, "Bearer "+sess.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dave", rec.Body.String())

	rec = call(t, h, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"authentication credentials were not provided"}`, rec.Body.String())

	rec = call(t, h, "Bearer not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(t, h, "Token "+sess.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticate_RejectsForeignSignature(t *testing.T) {
	t.Parallel()
	store := accounttest.NewStore()
	sess, err := NewService(store, "other-secret", 0).Register(context.Background(), "erin", "password123", "")
	require.NoError(t, err)

	h := NewJWTMiddleware(testSecret, store, nil, 0).Authenticate(whoAmI())
	assert.Equal(t, http.StatusUnauthorized, call(t, h, "Bearer "+sess.Token).Code)
}

func TestAuthenticate_Expired(t *testing.T) {
	t.Parallel()
	store := accounttest.NewStore()
	svc := NewService(store, testSecret, time.Hour)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	sess, err := svc.Register(context.Background(), "frank", "password123", "")
	require.NoError(t, err)

	h := NewJWTMiddleware(testSecret, store, nil, 0).Authenticate(whoAmI())
	rec := call(t, h, "Bearer "+sess.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"token expired"}`, rec.Body.String())
}

func TestAuthenticate_SubjectMustOwnToken(t *testing.T) {
	t.Parallel()
	store := accounttest.NewStore()
	sess, err := NewService(store, testSecret, 0).Register(context.Background(), "grace", "password123", "")
	require.NoError(t, err)
	claims := &Claims{}
	_, _, err = jwt.NewParser().ParseUnverified(sess.Token, claims)
	require.NoError(t, err)

	forged := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:  uuid.NewString(),
		ID:       claims.ID,
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, forged).SignedString([]byte(testSecret))
	require.NoError(t, err)

	h := NewJWTMiddleware(testSecret, store, nil, 0).Authenticate(whoAmI())
	assert.Equal(t, http.StatusUnauthorized, call(t, h, "Bearer "+signed).Code)
}

func TestAuthenticate_UsesCache(t *testing.T) {
	t.Parallel()
	store := accounttest.NewStore()
	sess, err := NewService(store, testSecret, 0).Register(context.Background(), "heidi", "password123", "")
	require.NoError(t, err)

	tc := newMemCache()
	h := NewJWTMiddleware(testSecret, store, tc, time.Minute).Authenticate(whoAmI())

	for range 3 {
		rec := call(t, h, "Bearer "+sess.Token)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 1, store.TokenLookups())

	var cached models.User
	claims := &Claims{}
	_, _, err = jwt.NewParser().ParseUnverified(sess.Token, claims)
	require.NoError(t, err)
	require.NoError(t, tc.Get(context.Background(), "token:"+claims.ID, &cached))
	assert.Equal(t, sess.User.ID, cached.ID)
	assert.Empty(t, cached.PasswordHash)
}

func TestAuthenticate_StaleCacheEntryIsReplaced(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := accounttest.NewStore()
	sess, err := NewService(store, testSecret, 0).Register(ctx, "judy", "password123", "")
	require.NoError(t, err)
	claims := &Claims{}
	_, _, err = jwt.NewParser().ParseUnverified(sess.Token, claims)
	require.NoError(t, err)

	tc := newMemCache()
	cacheKey := "token:" + claims.ID
	require.NoError(t, tc.Set(ctx, cacheKey, models.User{ID: uuid.New(), Username: "mallory"}, time.Minute))

	h := NewJWTMiddleware(testSecret, store, tc, time.Minute).Authenticate(whoAmI())
	rec := call(t, h, "Bearer "+sess.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "judy", rec.Body.String())
	assert.Equal(t, 1, store.TokenLookups())

	var cached models.User
	require.NoError(t, tc.Get(ctx, cacheKey, &cached))
	assert.Equal(t, sess.User.ID, cached.ID)
}

func TestAuthenticate_DeletedToken(t *testing.T) {
	t.Parallel()
	store := accounttest.NewStore()
	sess, err := NewService(store, testSecret, 0).Register(context.Background(), "ivan", "password123", "")
	require.NoError(t, err)
	store.DeleteTokens()

	h := NewJWTMiddleware(testSecret, store, nil, 0).Authenticate(whoAmI())
	assert.Equal(t, http.StatusUnauthorized, call(t, h, "Bearer "+sess.Token).Code)
}
