package svc

import (
	"context"
	"net/http"

	"github.com/fachebot/wecom-sync-bot/internal/config"
	"github.com/fachebot/wecom-sync-bot/internal/host"
	"github.com/fachebot/wecom-sync-bot/internal/logger"
	"github.com/fachebot/wecom-sync-bot/internal/message"
	"github.com/fachebot/wecom-sync-bot/internal/model"
	"github.com/fachebot/wecom-sync-bot/internal/report"
	"github.com/fachebot/wecom-sync-bot/internal/store"
)

type ServiceContext struct {
	Config         *config.Config
	Store          store.KV
	TransportProxy *http.Transport
	SyncStateModel *model.SyncStateModel
	FlagModel      *model.FlagModel
	Navigator      *host.Navigator
	Reader         *message.Reader
	Reporter       *report.Reporter
}

func NewServiceContext(c *config.Config) *ServiceContext {
	// 打开去重存储
	kv, err := store.Open(context.Background(), c.Store.Driver, c.Store.DSN)
	if err != nil {
		logger.Fatalf("打开去重存储失败, %v", err)
	}

	// 创建SOCKS5代理
	transportProxy, err := report.NewProxyTransport(c.Sock5Proxy)
	if err != nil {
		logger.Fatalf("%v", err)
	}

	syncStateModel := model.NewSyncStateModel(kv)
	flagModel := model.NewFlagModel(kv)

	// 宿主设备与消息读取
	bridge := host.NewBridge(c.Host)
	navigator := host.NewNavigator(bridge, c.Host, c.Loop)
	extractor := message.NewExtractor(bridge, flagModel, syncStateModel, message.ExtractorOptions{
		InviteMarkers:   c.Loop.InviteMarkers,
		LoadTimeout:     c.Loop.Long(),
		LoadInterval:    c.Loop.Pop() / 5,
		CaptureInterval: c.Loop.Pop(),
		Viewer:          navigator,
		Joiner:          navigator,
	})

	svcCtx := &ServiceContext{
		Config:         c,
		Store:          kv,
		TransportProxy: transportProxy,
		SyncStateModel: syncStateModel,
		FlagModel:      flagModel,
		Navigator:      navigator,
		Reader:         message.NewReader(bridge, extractor, c.Loop.Pop(), c.Loop.ImageCheck),
		Reporter:       report.NewReporter(&c.Report, transportProxy),
	}
	return svcCtx
}

func (svcCtx *ServiceContext) Close() {
	if err := svcCtx.Store.Close(); err != nil {
		logger.Errorf("关闭去重存储失败, %v", err)
	}
}
