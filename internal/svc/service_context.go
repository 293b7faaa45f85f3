package svc

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/fachebot/review-insight/internal/config"
	"github.com/fachebot/review-insight/internal/llm"
	"github.com/fachebot/review-insight/internal/logger"
	"github.com/fachebot/review-insight/internal/model"

	entsql "entgo.io/ent/dialect/sql"
	"golang.org/x/net/proxy"
)

type ServiceContext struct {
	Config           *config.Config
	Driver           *entsql.Driver
	TransportProxy   *http.Transport
	AppModel         *model.AppModel
	ReviewModel      *model.ReviewModel
	AnalysisRunModel *model.AnalysisRunModel
	LLMClient        *llm.Client
}

func NewServiceContext(c *config.Config) *ServiceContext {
	// 创建数据库连接
	drv, err := model.Open(c.Database.Driver, c.Database.DSN)
	if err != nil {
		logger.Fatalf("打开数据库失败, %v", err)
	}
	if err := model.Migrate(context.Background(), drv); err != nil {
		logger.Fatalf("创建数据库Schema失败, %v", err)
	}

	// 创建SOCKS5代理
	var transportProxy *http.Transport
	if c.Sock5Proxy.Enable {
		socks5Proxy := fmt.Sprintf("%s:%d", c.Sock5Proxy.Host, c.Sock5Proxy.Port)
		dialer, err := proxy.SOCKS5("tcp", socks5Proxy, nil, proxy.Direct)
		if err != nil {
			logger.Fatalf("创建SOCKS5代理失败, %v", err)
		}

		transportProxy = &http.Transport{
			Dial:            dialer.Dial,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	// 未配置凭据时不创建 LLM 客户端，只读命令和主题发现不依赖它
	var llmClient *llm.Client
	if c.LLM.ValidateCredentials() == nil {
		llmClient, err = llm.NewClient(context.Background(), &c.LLM, transportProxy)
		if err != nil {
			logger.Fatalf("创建LLM客户端失败, %v", err)
		}
	}

	svcCtx := &ServiceContext{
		Config:           c,
		Driver:           drv,
		TransportProxy:   transportProxy,
		AppModel:         model.NewAppModel(drv),
		ReviewModel:      model.NewReviewModel(drv),
		AnalysisRunModel: model.NewAnalysisRunModel(drv),
		LLMClient:        llmClient,
	}
	return svcCtx
}

func (svcCtx *ServiceContext) Close() {
	if err := svcCtx.Driver.Close(); err != nil {
		logger.Errorf("关闭数据库失败, %v", err)
	}
}
