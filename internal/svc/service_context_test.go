package svc

import (
	"path/filepath"
	"testing"

	"github.com/fachebot/teams-digest-bot/internal/auth"
	"github.com/fachebot/teams-digest-bot/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Graph: config.Graph{
			TenantID:     "tenant-1",
			ClientID:     "client-1",
			TeamID:       "team-1",
			ChannelID:    "channel-1",
			AuthorityURL: config.DefaultAuthorityURL,
			BaseURL:      config.DefaultGraphBaseURL,
			Scopes:       []string{config.DefaultGraphScope},
			TokenCache:   config.TokenCacheMemory,
			ContentType:  config.ContentTypeText,
		},
		LLM: config.LLM{BaseURL: config.DefaultLLMBaseURL, APIKey: "sk-test", Model: config.DefaultLLMModel},
		Run: config.Run{DaysBack: 1, RequestTimeout: 30, AuthTimeout: 300, SummaryTimeout: 120},
		Journal: config.Journal{
			Path: filepath.Join(t.TempDir(), "journal.db"),
		},
	}
}

func TestNewTransportProxy(t *testing.T) {
	transport, err := newTransportProxy(&config.Sock5Proxy{})
	require.NoError(t, err)
	assert.Nil(t, transport)

	transport, err = newTransportProxy(&config.Sock5Proxy{Host: "127.0.0.1", Port: 1080, Enable: true})
	require.NoError(t, err)
	require.NotNil(t, transport)
	assert.NotNil(t, transport.DialContext)
	assert.Nil(t, transport.Proxy)
}

func TestNewTokenCache(t *testing.T) {
	_, ok := newTokenCache(&config.Graph{TokenCache: config.TokenCacheMemory}).(*auth.MemoryCache)
	assert.True(t, ok)

	_, ok = newTokenCache(&config.Graph{TokenCache: config.TokenCacheKeyring}).(*auth.KeyringCache)
	assert.True(t, ok)
}

func TestNewServiceContext(t *testing.T) {
	c := testConfig(t)
	svcCtx := NewServiceContext(c)
	defer svcCtx.Close()

	assert.NotNil(t, svcCtx.Pipeline)
	assert.NotNil(t, svcCtx.GraphClient)
	assert.Nil(t, svcCtx.Journal)
	assert.Nil(t, svcCtx.TransportProxy)
}

func TestNewServiceContext_WithJournal(t *testing.T) {
	c := testConfig(t)
	c.Journal.Enable = true
	svcCtx := NewServiceContext(c)
	defer svcCtx.Close()

	assert.NotNil(t, svcCtx.Journal)
	assert.FileExists(t, c.Journal.Path)
}
