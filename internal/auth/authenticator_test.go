package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fachebot/teams-digest-bot/internal/config"
	"github.com/fachebot/teams-digest-bot/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
)

// fakeAuthority 模拟 OAuth 授权服务的 devicecode 与 token 端点
type fakeAuthority struct {
	deviceStatus int
	tokenHandler func(w http.ResponseWriter, r *http.Request)
	deviceCalls  int32
	tokenCalls   int32
}

func (f *fakeAuthority) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/tenant-1/oauth2/v2.0/devicecode":
		atomic.AddInt32(&f.deviceCalls, 1)
		if f.deviceStatus != 0 && f.deviceStatus != http.StatusOK {
			w.WriteHeader(f.deviceStatus)
			_, _ = io.WriteString(w, `{"error":"invalid_client"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"device_code":"dev-code","user_code":"ABC-123","verification_uri":"https://microsoft.com/devicelogin","expires_in":900,"interval":1}`)
	case "/tenant-1/oauth2/v2.0/token":
		atomic.AddInt32(&f.tokenCalls, 1)
		f.tokenHandler(w, r)
	default:
		http.NotFound(w, r)
	}
}

func issueToken(accessToken string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"`+accessToken+`","token_type":"Bearer","expires_in":3600,"refresh_token":"refresh-1"}`)
	}
}

func newTestAuthenticator(t *testing.T, authority *fakeAuthority, cache TokenCache, timeout time.Duration) (*Authenticator, *[]string) {
	t.Helper()
	return newTestAuthenticatorWithSecret(t, authority, cache, timeout, "")
}

func newTestAuthenticatorWithSecret(t *testing.T, authority *fakeAuthority, cache TokenCache, timeout time.Duration, secret string) (*Authenticator, *[]string) {
	t.Helper()
	srv := httptest.NewServer(authority)
	t.Cleanup(srv.Close)

	cfg := &config.Graph{
		TenantID:     "tenant-1",
		ClientID:     "client-1",
		ClientSecret: secret,
		AuthorityURL: srv.URL,
		Scopes:       []string{config.DefaultGraphScope, "offline_access"},
	}
	a := NewAuthenticator(cfg, srv.Client(), cache, timeout)

	prompts := &[]string{}
	a.prompt = func(da *oauth2.DeviceAuthResponse) {
		*prompts = append(*prompts, da.UserCode)
	}
	return a, prompts
}

func TestEndpoint(t *testing.T) {
	e := Endpoint("https://login.microsoftonline.com/", "contoso")
	assert.Equal(t, "https://login.microsoftonline.com/contoso/oauth2/v2.0/token", e.TokenURL)
	assert.Equal(t, "https://login.microsoftonline.com/contoso/oauth2/v2.0/devicecode", e.DeviceAuthURL)
	assert.Equal(t, oauth2.AuthStyleInParams, e.AuthStyle)
}

func TestAuthenticate_CachedTokenIsUsedSilently(t *testing.T) {
	authority := &fakeAuthority{tokenHandler: issueToken("unused")}
	cache := NewMemoryCache()
	require.NoError(t, cache.Save(&oauth2.Token{AccessToken: "cached", Expiry: time.Now().Add(time.Hour)}))
	a, prompts := newTestAuthenticator(t, authority, cache, 5*time.Second)

	sess := &session.Session{}
	assert.True(t, a.Authenticate(context.Background(), sess))
	assert.Equal(t, "cached", sess.Token)
	assert.Empty(t, *prompts)
	assert.Equal(t, int32(0), atomic.LoadInt32(&authority.deviceCalls))
	assert.Equal(t, int32(0), atomic.LoadInt32(&authority.tokenCalls))
}

func TestAuthenticate_ExpiredTokenIsRefreshed(t *testing.T) {
	authority := &fakeAuthority{tokenHandler: func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.PostForm.Get("refresh_token"))
		issueToken("refreshed")(w, r)
	}}
	cache := NewMemoryCache()
	require.NoError(t, cache.Save(&oauth2.Token{
		AccessToken:  "expired",
		RefreshToken: "old-refresh",
		Expiry:       time.Now().Add(-time.Hour),
	}))
	a, prompts := newTestAuthenticator(t, authority, cache, 5*time.Second)

	sess := &session.Session{}
	assert.True(t, a.Authenticate(context.Background(), sess))
	assert.Equal(t, "refreshed", sess.Token)
	assert.Empty(t, *prompts)

	saved, err := cache.Load()
	require.NoError(t, err)
	assert.Equal(t, "refreshed", saved.AccessToken)
}

func TestAuthenticate_FallsBackToDeviceCode(t *testing.T) {
	authority := &fakeAuthority{tokenHandler: func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "urn:ietf:params:oauth:grant-type:device_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "dev-code", r.PostForm.Get("device_code"))
		issueToken("interactive")(w, r)
	}}
	cache := NewMemoryCache()
	a, prompts := newTestAuthenticator(t, authority, cache, 10*time.Second)

	sess := &session.Session{}
	assert.True(t, a.Authenticate(context.Background(), sess))
	assert.Equal(t, "interactive", sess.Token)
	assert.Equal(t, []string{"ABC-123"}, *prompts)

	// 第二次运行走静默缓存，不再提示
	sess2 := &session.Session{}
	assert.True(t, a.Authenticate(context.Background(), sess2))
	assert.Equal(t, "interactive", sess2.Token)
	assert.Len(t, *prompts, 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&authority.deviceCalls))
}

func TestAuthenticate_BothBranchesFail(t *testing.T) {
	authority := &fakeAuthority{deviceStatus: http.StatusBadRequest, tokenHandler: issueToken("unused")}
	a, prompts := newTestAuthenticator(t, authority, NewMemoryCache(), 5*time.Second)

	sess := &session.Session{}
	assert.False(t, a.Authenticate(context.Background(), sess))
	assert.Empty(t, sess.Token)
	assert.Empty(t, *prompts)
}

func TestAuthenticate_InteractiveTimeout(t *testing.T) {
	authority := &fakeAuthority{tokenHandler: func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"authorization_pending"}`)
	}}
	a, prompts := newTestAuthenticator(t, authority, NewMemoryCache(), 1500*time.Millisecond)

	start := time.Now()
	sess := &session.Session{}
	assert.False(t, a.Authenticate(context.Background(), sess))
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Len(t, *prompts, 1)
	assert.Empty(t, sess.Token)
}

func TestAuthenticate_ClientSecretNeverSent(t *testing.T) {
	var grants []string
	var mu sync.Mutex
	authority := &fakeAuthority{tokenHandler: func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Empty(t, r.PostForm.Get("client_secret"))
		_, _, hasBasic := r.BasicAuth()
		assert.False(t, hasBasic)
		assert.Equal(t, "client-1", r.PostForm.Get("client_id"))

		mu.Lock()
		grants = append(grants, r.PostForm.Get("grant_type"))
		mu.Unlock()
		issueToken("interactive")(w, r)
	}}
	cache := NewMemoryCache()
	a, _ := newTestAuthenticatorWithSecret(t, authority, cache, 10*time.Second, "s3cret")

	// 设备码换取令牌
	assert.True(t, a.Authenticate(context.Background(), &session.Session{}))

	// 令牌过期后刷新
	require.NoError(t, cache.Save(&oauth2.Token{
		AccessToken:  "expired",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(-time.Hour),
	}))
	assert.True(t, a.Authenticate(context.Background(), &session.Session{}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"urn:ietf:params:oauth:grant-type:device_code", "refresh_token"}, grants)
}

func TestKeyringCache(t *testing.T) {
	keyring.MockInit()
	cache := NewKeyringCache("tenant-1", "client-1")

	token, err := cache.Load()
	require.NoError(t, err)
	assert.Nil(t, token)

	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, cache.Save(&oauth2.Token{AccessToken: "a", RefreshToken: "r", Expiry: expiry}))

	token, err = cache.Load()
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, "a", token.AccessToken)
	assert.Equal(t, "r", token.RefreshToken)
	assert.True(t, token.Expiry.Equal(expiry))
}
