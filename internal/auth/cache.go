package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
)

const keyringService = "teams-digest-bot"

// TokenCache 静默获取令牌时使用的缓存，Load 在无缓存时返回 (nil, nil)
type TokenCache interface {
	Load() (*oauth2.Token, error)
	Save(token *oauth2.Token) error
}

// MemoryCache 进程内缓存，定时模式下可在多次运行之间复用令牌
type MemoryCache struct {
	mu    sync.Mutex
	token *oauth2.Token
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) Load() (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, nil
}

func (c *MemoryCache) Save(token *oauth2.Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	return nil
}

// KeyringCache 将令牌以 JSON 形式保存在系统钥匙串中
type KeyringCache struct {
	account string
}

func NewKeyringCache(tenantID, clientID string) *KeyringCache {
	return &KeyringCache{account: fmt.Sprintf("%s/%s", tenantID, clientID)}
}

func (c *KeyringCache) Load() (*oauth2.Token, error) {
	data, err := keyring.Get(keyringService, c.account)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read keyring: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal([]byte(data), &token); err != nil {
		return nil, fmt.Errorf("parse cached token: %w", err)
	}
	return &token, nil
}

func (c *KeyringCache) Save(token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return keyring.Set(keyringService, c.account, string(data))
}
