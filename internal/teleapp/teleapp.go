// Package teleapp 以 Telegram 用户账号接入运维通道：发送告警，接收私信指令。
package teleapp

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fachebot/wecom-sync-bot/internal/config"
	"github.com/fachebot/wecom-sync-bot/internal/logger"

	"github.com/zelenin/go-tdlib/client"
)

// commandHandler 运维指令
type commandHandler interface {
	Handle(userID int64, text string) (string, bool)
}

type TeleApp struct {
	user       *client.User
	tdClient   *client.Client
	listener   *client.Listener
	parameters *client.SetTdlibParametersRequest
	commands   commandHandler
	ctx        context.Context
	cancel     context.CancelFunc
	ctxMu      sync.Mutex
}

func NewApp(c *config.TelegramApp) *TeleApp {
	_, err := client.SetLogVerbosityLevel(&client.SetLogVerbosityLevelRequest{
		NewVerbosityLevel: 1,
	})
	if err != nil {
		logger.Fatalf("[TeleApp] 设置日志级别错误, %s", err)
	}

	parameters := &client.SetTdlibParametersRequest{
		UseTestDc:           false,
		DatabaseDirectory:   filepath.Join(c.DataDir, ".tdlib", "database"),
		FilesDirectory:      filepath.Join(c.DataDir, ".tdlib", "files"),
		UseFileDatabase:     true,
		UseChatInfoDatabase: true,
		UseMessageDatabase:  false,
		UseSecretChats:      false,
		ApiId:               c.ApiId,
		ApiHash:             c.ApiHash,
		SystemLanguageCode:  "en",
		DeviceModel:         "Server",
		SystemVersion:       "1.0.0",
		ApplicationVersion:  "1.0.0",
	}

	return &TeleApp{parameters: parameters}
}

// SetCommands 设置私信指令处理器，需在 Login 之前调用
func (app *TeleApp) SetCommands(h commandHandler) {
	app.commands = h
}

func (app *TeleApp) Login(options ...client.Option) (*client.User, error) {
	if app.user != nil {
		return app.user, nil
	}

	authorizer := client.ClientAuthorizer(app.parameters)
	go client.CliInteractor(authorizer)

	tdlibClient, err := client.NewClient(authorizer, options...)
	if err != nil {
		return nil, err
	}

	me, err := tdlibClient.GetMe()
	if err != nil {
		return nil, err
	}

	app.user = me
	app.tdClient = tdlibClient

	listener := tdlibClient.GetListener()
	app.listener = listener

	app.ctxMu.Lock()
	app.ctx, app.cancel = context.WithCancel(context.Background())
	app.ctxMu.Unlock()

	go app.getUpdates(listener)

	return me, nil
}

func (app *TeleApp) Close() error {
	if app.tdClient == nil {
		return nil
	}

	app.ctxMu.Lock()
	if app.cancel != nil {
		app.cancel()
	}
	app.ctxMu.Unlock()

	if app.listener != nil {
		app.listener.Close()
	}

	_, err := app.tdClient.Close()
	return err
}

// SendText 发送 HTML 格式的文本消息
func (app *TeleApp) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := app.tdClient.SendMessage(&client.SendMessageRequest{
		ChatId: chatID,
		InputMessageContent: &client.InputMessageText{
			Text: parseHTMLText(text),
		},
	})
	return err
}

// parseHTMLText 使用 TDLib 的 HTML 解析能力，将 HTML 文本转换为带实体的 FormattedText。
// 支持的 HTML 标签：<b>粗体</b>、<a href="url">链接</a>
func parseHTMLText(text string) *client.FormattedText {
	if text == "" {
		return &client.FormattedText{Text: text}
	}

	formatted, err := client.ParseTextEntities(&client.ParseTextEntitiesRequest{
		Text:      text,
		ParseMode: &client.TextParseModeHTML{},
	})
	if err != nil {
		logger.Warnf("[TeleApp] 解析 HTML 文本失败，回退为纯文本发送: %v", err)
		return &client.FormattedText{Text: text}
	}
	return formatted
}

func (app *TeleApp) getUpdates(listener *client.Listener) {
	app.ctxMu.Lock()
	ctx := app.ctx
	app.ctxMu.Unlock()

	for listener.IsActive() {
		select {
		case <-ctx.Done():
			logger.Infof("[TeleApp] 更新循环已取消，退出")
			return
		case update := <-listener.Updates:
			if update.GetType() != "updateNewMessage" {
				continue
			}

			// 仅处理收到的文本消息
			message := update.(*client.UpdateNewMessage).Message
			if message.IsOutgoing || message.Content.MessageContentType() != "messageText" {
				continue
			}
			text := message.Content.(*client.MessageText)
			if text.Text == nil || text.Text.Text == "" {
				continue
			}

			// 指令只接受用户私信
			sender, ok := message.SenderId.(*client.MessageSenderUser)
			if !ok || sender.UserId != message.ChatId {
				continue
			}
			logger.Debugf("[TeleApp] 接收私信: %d -> %s", sender.UserId, text.Text.Text)

			if app.commands == nil {
				continue
			}
			reply, ok := app.commands.Handle(sender.UserId, text.Text.Text)
			if !ok {
				continue
			}
			if err := app.SendText(ctx, message.ChatId, reply); err != nil {
				logger.Errorf("[TeleApp] 回复指令失败, %v", err)
			}
		}
	}
}
