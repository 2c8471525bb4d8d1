package auth

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fachebot/teams-digest-bot/internal/config"
	"github.com/fachebot/teams-digest-bot/internal/logger"
	"github.com/fachebot/teams-digest-bot/internal/session"
	"golang.org/x/oauth2"
)

type Authenticator struct {
	oauthConfig *oauth2.Config
	httpClient  *http.Client
	cache       TokenCache
	timeout     time.Duration
	prompt      func(da *oauth2.DeviceAuthResponse)
}

// Endpoint 根据授权地址和租户构造 v2.0 端点
func Endpoint(authorityURL, tenantID string) oauth2.Endpoint {
	base := strings.TrimRight(authorityURL, "/") + "/" + url.PathEscape(tenantID) + "/oauth2/v2.0"
	return oauth2.Endpoint{
		AuthURL:       base + "/authorize",
		TokenURL:      base + "/token",
		DeviceAuthURL: base + "/devicecode",
		AuthStyle:     oauth2.AuthStyleInParams,
	}
}

// NewAuthenticator timeout 限制交互式登录（设备码轮询）的总时长
func NewAuthenticator(cfg *config.Graph, httpClient *http.Client, cache TokenCache, timeout time.Duration) *Authenticator {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Authenticator{
		// 设备码登录属于公共客户端流程，不携带 client secret
		oauthConfig: &oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: Endpoint(cfg.AuthorityURL, cfg.TenantID),
			Scopes:   cfg.Scopes,
		},
		httpClient: httpClient,
		cache:      cache,
		timeout:    timeout,
		prompt:     printDeviceCode,
	}
}

func printDeviceCode(da *oauth2.DeviceAuthResponse) {
	verificationURI := da.VerificationURIComplete
	if verificationURI == "" {
		verificationURI = da.VerificationURI
	}
	logger.Infof("[Auth] 请在浏览器中打开 %s 并输入代码 %s 完成登录", verificationURI, da.UserCode)
}

// Authenticate 先静默获取令牌，失败再走交互式设备码登录
// 成功时把令牌写入会话；两种方式都拿不到令牌时返回 false
func (a *Authenticator) Authenticate(ctx context.Context, sess *session.Session) bool {
	if a.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	}

	token := a.acquireSilent(ctx)
	if token == nil {
		token = a.acquireInteractive(ctx)
	}
	if token == nil || token.AccessToken == "" {
		return false
	}

	sess.SetToken(token.AccessToken)
	return true
}

func (a *Authenticator) acquireSilent(ctx context.Context) *oauth2.Token {
	cached, err := a.cache.Load()
	if err != nil {
		logger.Warnf("[Auth] 读取令牌缓存失败: %v", err)
		return nil
	}
	if cached == nil {
		return nil
	}
	if cached.Valid() {
		logger.Debugf("[Auth] 使用缓存令牌")
		return cached
	}
	if cached.RefreshToken == "" {
		return nil
	}

	refreshed, err := a.oauthConfig.TokenSource(ctx, cached).Token()
	if err != nil {
		logger.Warnf("[Auth] 刷新令牌失败: %v", err)
		return nil
	}
	logger.Debugf("[Auth] 已刷新缓存令牌")
	a.store(refreshed)
	return refreshed
}

func (a *Authenticator) acquireInteractive(ctx context.Context) *oauth2.Token {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	da, err := a.oauthConfig.DeviceAuth(ctx)
	if err != nil {
		logger.Warnf("[Auth] 请求设备码失败: %v", err)
		return nil
	}
	a.prompt(da)

	token, err := a.oauthConfig.DeviceAccessToken(ctx, da)
	if err != nil {
		logger.Warnf("[Auth] 等待设备码登录失败: %v", err)
		return nil
	}
	a.store(token)
	return token
}

func (a *Authenticator) store(token *oauth2.Token) {
	if err := a.cache.Save(token); err != nil {
		logger.Warnf("[Auth] 保存令牌缓存失败: %v", err)
	}
}
