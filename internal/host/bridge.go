package host

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fachebot/wecom-sync-bot/internal/config"
	"github.com/fachebot/wecom-sync-bot/internal/message"
	"github.com/fachebot/wecom-sync-bot/internal/metrics"
	"github.com/fachebot/wecom-sync-bot/internal/uitree"
)

type actionRequest struct {
	Action string  `json:"action"`
	Path   string  `json:"path,omitempty"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Text   string  `json:"text,omitempty"`
}

type actionResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Bridge 通过 HTTP 访问宿主桥接服务
type Bridge struct {
	baseURL string
	client  *http.Client
}

func NewBridge(c config.Host) *Bridge {
	return &Bridge{
		baseURL: strings.TrimRight(c.BaseURL, "/"),
		client:  &http.Client{Timeout: time.Duration(c.Timeout) * time.Second},
	}
}

func (b *Bridge) do(ctx context.Context, method, endpoint string, query url.Values, body any) ([]byte, int, error) {
	u := b.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		metrics.HostRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, 0, fmt.Errorf("请求宿主失败 %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	metrics.HostRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, resp.StatusCode, ErrNodeGone
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("宿主返回异常状态 %s: %d %s", endpoint, resp.StatusCode, bytes.TrimSpace(data))
	}
	return data, resp.StatusCode, nil
}

func (b *Bridge) getJSON(ctx context.Context, endpoint string, query url.Values, out any) error {
	data, _, err := b.do(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (b *Bridge) action(ctx context.Context, req actionRequest) (bool, error) {
	data, _, err := b.do(ctx, http.MethodPost, "/action", nil, req)
	if err != nil {
		return false, err
	}
	var resp actionResponse
	if err = json.Unmarshal(data, &resp); err != nil {
		return false, err
	}
	if resp.Error != "" {
		return false, fmt.Errorf("%w: %s %s", ErrActionRejected, req.Action, resp.Error)
	}
	return resp.OK, nil
}

func (b *Bridge) mustAction(ctx context.Context, req actionRequest) error {
	ok, err := b.action(ctx, req)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrActionRejected, req.Action, req.Path)
	}
	return nil
}

func (b *Bridge) Root(ctx context.Context) (*uitree.Node, error) {
	return b.Subtree(ctx, nil)
}

func (b *Bridge) Subtree(ctx context.Context, path []int) (*uitree.Node, error) {
	var query url.Values
	if len(path) > 0 {
		query = url.Values{"path": {pathString(path)}}
	}
	data, _, err := b.do(ctx, http.MethodGet, "/tree", query, nil)
	if err != nil {
		return nil, err
	}
	return uitree.Decode(data, path)
}

func (b *Bridge) Click(ctx context.Context, node *uitree.Node) error {
	return b.mustAction(ctx, actionRequest{Action: "click", Path: node.PathString()})
}

func (b *Bridge) Tap(ctx context.Context, node *uitree.Node) error {
	return b.mustAction(ctx, actionRequest{Action: "tap", Path: node.PathString()})
}

func (b *Bridge) TapXY(ctx context.Context, x, y float64) error {
	return b.mustAction(ctx, actionRequest{Action: "tap", X: x, Y: y})
}

func (b *Bridge) Scroll(ctx context.Context, node *uitree.Node, forward bool) (bool, error) {
	action := "scroll_backward"
	if forward {
		action = "scroll_forward"
	}
	return b.action(ctx, actionRequest{Action: action, Path: node.PathString()})
}

func (b *Bridge) Back(ctx context.Context) error {
	return b.mustAction(ctx, actionRequest{Action: "back"})
}

func (b *Bridge) CurrentPage(ctx context.Context) (string, error) {
	var resp struct {
		Page string `json:"page"`
	}
	if err := b.getJSON(ctx, "/page", nil, &resp); err != nil {
		return "", err
	}
	return resp.Page, nil
}

func (b *Bridge) LaunchApp(ctx context.Context) error {
	return b.mustAction(ctx, actionRequest{Action: "launch"})
}

func (b *Bridge) Toast(ctx context.Context, text string) error {
	return b.mustAction(ctx, actionRequest{Action: "toast", Text: text})
}

func (b *Bridge) Room(ctx context.Context) (message.RoomSignature, error) {
	var room message.RoomSignature
	err := b.getJSON(ctx, "/room", nil, &room)
	return room, err
}

func (b *Bridge) FullTitles(ctx context.Context, kind message.RoomKind) ([]string, error) {
	var resp struct {
		Titles []string `json:"titles"`
	}
	if err := b.getJSON(ctx, "/room/fulltitles", url.Values{"kind": {kind.String()}}, &resp); err != nil {
		return nil, err
	}
	return resp.Titles, nil
}

func (b *Bridge) Screenshot(ctx context.Context) ([]byte, error) {
	data, _, err := b.do(ctx, http.MethodGet, "/screenshot", nil, nil)
	return data, err
}

func pathString(path []int) string {
	parts := make([]string, len(path))
	for i, idx := range path {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, ".")
}
