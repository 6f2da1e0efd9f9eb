package report

import (
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/fachebot/wecom-sync-bot/internal/config"
	"golang.org/x/net/proxy"
)

// NewProxyTransport 按配置创建 SOCKS5 代理，未启用返回 nil
func NewProxyTransport(c config.Sock5Proxy) (*http.Transport, error) {
	if !c.Enable {
		return nil, nil
	}

	socks5Proxy := fmt.Sprintf("%s:%d", c.Host, c.Port)
	dialer, err := proxy.SOCKS5("tcp", socks5Proxy, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("创建SOCKS5代理失败: %w", err)
	}

	return &http.Transport{
		Dial:            dialer.Dial,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}, nil
}
