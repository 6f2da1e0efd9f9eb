//go:build linux
// +build linux

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fachebot/wecom-sync-bot/internal/api"
	"github.com/fachebot/wecom-sync-bot/internal/config"
	"github.com/fachebot/wecom-sync-bot/internal/dispatch"
	"github.com/fachebot/wecom-sync-bot/internal/logger"
	"github.com/fachebot/wecom-sync-bot/internal/loop"
	"github.com/fachebot/wecom-sync-bot/internal/notify"
	"github.com/fachebot/wecom-sync-bot/internal/scheduler"
	"github.com/fachebot/wecom-sync-bot/internal/svc"
	"github.com/fachebot/wecom-sync-bot/internal/teleapp"

	"github.com/zelenin/go-tdlib/client"
)

var configFile = flag.String("f", "etc/config.yaml", "the config file")

func main() {
	flag.Parse()

	// 读取配置文件
	c, err := config.LoadFromFile(*configFile)
	if err != nil {
		logger.Fatalf("读取配置文件失败, %s", err)
	}
	logger.SetLevel(c.LogLevel)

	// 创建数据目录
	if _, err := os.Stat("data"); os.IsNotExist(err) {
		err := os.Mkdir("data", 0755)
		if err != nil {
			logger.Fatalf("创建数据目录失败, %s", err)
		}
	}

	// 创建服务上下文
	svcCtx := svc.NewServiceContext(c)
	logger.Infof("[Report] 会话ID: %s", svcCtx.Reporter.SessionID())

	// 创建TeleApp
	var app *teleapp.TeleApp
	var sender notify.Sender
	if c.TelegramApp.Enable {
		app = teleapp.NewApp(&c.TelegramApp)
		sender = app
	}

	// 创建主循环与指令队列
	notifier := notify.NewNotifier(sender, &c.TelegramApp)
	syncLoop := loop.New(
		&c.Loop,
		svcCtx.Navigator,
		svcCtx.Reader,
		svcCtx.Reporter,
		svcCtx.SyncStateModel,
		svcCtx.FlagModel,
		notifier,
	)
	dispatcher := dispatch.New(syncLoop)
	syncLoop.SetResumer(dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	go dispatcher.Serve(ctx)

	// 登录Telegram，接收运维指令
	if app != nil {
		options := make([]client.Option, 0)
		if c.Sock5Proxy.Enable {
			options = append(options, client.WithProxy(&client.AddProxyRequest{
				Server: c.Sock5Proxy.Host,
				Port:   c.Sock5Proxy.Port,
				Enable: c.Sock5Proxy.Enable,
				Type:   &client.ProxyTypeSocks5{},
			}))
		}

		app.SetCommands(notify.NewCommands(dispatcher, syncLoop, c.TelegramApp.NotifyUserIds))
		user, err := app.Login(options...)
		if err != nil {
			logger.Fatalf("[TeleApp] 用户登录失败, %s", err)
		}
		logger.Infof("[TeleApp] 用户 <%s %s>(%d) 登录成功", user.FirstName, user.LastName, user.Id)
	}

	// 创建并启动调度器
	schedulerInstance := scheduler.NewScheduler(syncLoop, dispatcher, svcCtx.SyncStateModel, &c.Maintenance)
	if err := schedulerInstance.Start(); err != nil {
		logger.Fatalf("[Scheduler] 启动调度器失败: %s", err)
	}

	// 控制接口
	var server *api.Server
	if c.API.Listen != "" {
		server = api.NewServer(c.API.Listen, api.NewRouter(dispatcher, syncLoop, svcCtx.Store))
		server.Start()
	}

	if c.Loop.AutoStart {
		dispatcher.StartLoop()
	}

	// 等待程序退出
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	// 优雅关闭
	logger.Infof("正在关闭服务...")
	syncLoop.Stop()
	schedulerInstance.Stop()
	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("[API] 关闭失败, %v", err)
		}
		shutdownCancel()
	}
	cancel()
	if app != nil {
		if err := app.Close(); err != nil {
			logger.Infof("[TeleApp] 关闭失败, %v", err)
		}
	}
	svcCtx.Close()
	logger.Infof("服务已停止")
}
