package svc

import (
	"fmt"
	"net/http"

	"github.com/fachebot/teams-digest-bot/internal/auth"
	"github.com/fachebot/teams-digest-bot/internal/config"
	"github.com/fachebot/teams-digest-bot/internal/graph"
	"github.com/fachebot/teams-digest-bot/internal/journal"
	"github.com/fachebot/teams-digest-bot/internal/llm"
	"github.com/fachebot/teams-digest-bot/internal/logger"
	"github.com/fachebot/teams-digest-bot/internal/notify"
	"github.com/fachebot/teams-digest-bot/internal/pipeline"
	"github.com/fachebot/teams-digest-bot/internal/summarizer"

	"golang.org/x/net/proxy"
)

type ServiceContext struct {
	Config         *config.Config
	TransportProxy *http.Transport
	Authenticator  *auth.Authenticator
	GraphClient    *graph.Client
	LLMClient      *llm.Client
	Summarizer     *summarizer.Summarizer
	Notifier       *notify.Notifier
	Journal        *journal.Journal
	Pipeline       *pipeline.Pipeline
}

// newTransportProxy 创建走 SOCKS5 代理的 Transport，未启用时返回 nil
func newTransportProxy(c *config.Sock5Proxy) (*http.Transport, error) {
	if !c.Enable {
		return nil, nil
	}

	socks5Proxy := fmt.Sprintf("%s:%d", c.Host, c.Port)
	dialer, err := proxy.SOCKS5("tcp", socks5Proxy, nil, proxy.Direct)
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
		transport.DialContext = contextDialer.DialContext
	} else {
		transport.Dial = dialer.Dial //nolint:staticcheck
	}
	return transport, nil
}

// newTokenCache 按配置选择 token 缓存
func newTokenCache(c *config.Graph) auth.TokenCache {
	if c.TokenCache == config.TokenCacheKeyring {
		return auth.NewKeyringCache(c.TenantID, c.ClientID)
	}
	return auth.NewMemoryCache()
}

func NewServiceContext(c *config.Config) *ServiceContext {
	// 创建SOCKS5代理
	transportProxy, err := newTransportProxy(&c.Sock5Proxy)
	if err != nil {
		logger.Fatalf("创建SOCKS5代理失败, %v", err)
	}

	// Graph 与 OAuth 共用请求超时，LLM 使用总结超时
	var transport http.RoundTripper
	if transportProxy != nil {
		transport = transportProxy
	}
	requestClient := &http.Client{Transport: transport, Timeout: c.Run.RequestTimeoutDuration()}
	llmClient := &http.Client{Transport: transport, Timeout: c.Run.SummaryTimeoutDuration()}

	authenticator := auth.NewAuthenticator(&c.Graph, requestClient, newTokenCache(&c.Graph), c.Run.AuthTimeoutDuration())
	graphClient := graph.NewClient(c.Graph.BaseURL, requestClient)
	completer := llm.NewClient(&c.LLM, llmClient, c.Run.SummaryTimeoutDuration())
	summarizerInstance := summarizer.NewSummarizer(completer)
	notifierInstance := notify.NewNotifier(graphClient, c.Graph.ContentType)

	p := pipeline.New(authenticator, graphClient, summarizerInstance, notifierInstance, pipeline.Options{
		TeamID:    c.Graph.TeamID,
		ChannelID: c.Graph.ChannelID,
		DaysBack:  c.Run.DaysBack,
	})

	// 运行记录（可选）
	var runJournal *journal.Journal
	if c.Journal.Enable {
		runJournal, err = journal.Open(c.Journal.Path)
		if err != nil {
			logger.Fatalf("打开运行记录数据库失败, %v", err)
		}
		p.WithRecorder(runJournal)
	}

	svcCtx := &ServiceContext{
		Config:         c,
		TransportProxy: transportProxy,
		Authenticator:  authenticator,
		GraphClient:    graphClient,
		LLMClient:      completer,
		Summarizer:     summarizerInstance,
		Notifier:       notifierInstance,
		Journal:        runJournal,
		Pipeline:       p,
	}
	return svcCtx
}

func (svcCtx *ServiceContext) Close() {
	if svcCtx.Journal == nil {
		return
	}
	if err := svcCtx.Journal.Close(); err != nil {
		logger.Errorf("关闭运行记录数据库失败, %v", err)
	}
}
