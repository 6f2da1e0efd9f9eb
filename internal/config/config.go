package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Sock5Proxy struct {
	Host   string `yaml:"Host"`
	Port   int32  `yaml:"Port"`
	Enable bool   `yaml:"Enable"`
}

// TelegramApp 运维告警与远程指令通道，可选
type TelegramApp struct {
	Enable        bool    `yaml:"Enable"`
	ApiId         int32   `yaml:"ApiId"`
	ApiHash       string  `yaml:"ApiHash"`
	DataDir       string  `yaml:"DataDir"`
	NotifyUserIds []int64 `yaml:"NotifyUserIds"` // 接收告警并允许下发指令的用户ID列表
}

// Host 宿主设备桥接服务
type Host struct {
	BaseURL         string `yaml:"BaseURL"`
	Timeout         int    `yaml:"Timeout"`         // 请求超时（秒）
	HomePage        string `yaml:"HomePage"`        // 首页页面名
	ImageViewerPage string `yaml:"ImageViewerPage"` // 图片预览页面名
	InvitePage      string `yaml:"InvitePage"`      // 群邀请落地页面名
}

type Store struct {
	Driver string `yaml:"Driver"` // "sqlite" / "redis" / "postgres"
	DSN    string `yaml:"DSN"`
}

type Report struct {
	URL           string `yaml:"URL"`
	Token         string `yaml:"Token"`
	RetryTimes    int    `yaml:"RetryTimes"`    // 上报失败重试次数，默认 3
	RetryInterval int    `yaml:"RetryInterval"` // 重试间隔（秒），默认 2
}

type Loop struct {
	PollInterval     int  `yaml:"PollInterval"`     // 两次轮询之间的间隔（毫秒），默认 5000
	PopInterval      int  `yaml:"PopInterval"`      // 等待界面弹出的间隔（毫秒），默认 1500
	ChangePage       int  `yaml:"ChangePage"`       // 等待翻页的间隔（毫秒），默认 1000
	LongInterval     int  `yaml:"LongInterval"`     // 等待加载/下载的上限（毫秒），默认 5000
	RecoveryInterval int  `yaml:"RecoveryInterval"` // 主循环异常后的恢复间隔（毫秒），默认 5000
	ReconcileEvery   int  `yaml:"ReconcileEvery"`   // 每 N 次轮询做一次全量检查，默认 600
	ReadTimeout      int  `yaml:"ReadTimeout"`      // 单次读房间超时（秒），默认 60
	ImageCheck       bool `yaml:"ImageCheck"`       // 是否截取图片消息
	FullGroupName    bool `yaml:"FullGroupName"`    // 群名被截断时是否查询完整群名
	FriendRequest    bool `yaml:"FriendRequest"`    // 是否自动通过好友请求
	AutoStart        bool `yaml:"AutoStart"`        // 进程启动后立即运行主循环

	TipPatterns    []string `yaml:"TipPatterns"`    // 无提示消息内容特征
	RecentPatterns []string `yaml:"RecentPatterns"` // 会话列表时间列的近期特征
	InviteMarkers  []string `yaml:"InviteMarkers"`  // 群邀请链接标题特征
}

// Maintenance 定时维护任务
type Maintenance struct {
	WatchdogCron  string `yaml:"WatchdogCron"`  // 检查主循环存活，默认每分钟
	CleanupCron   string `yaml:"CleanupCron"`   // 清理过期去重记录，默认每天 04:00
	RetentionDays int    `yaml:"RetentionDays"` // 去重记录保留天数，默认 30
}

type API struct {
	Listen string `yaml:"Listen"` // 为空则不启动控制接口
}

type Config struct {
	LogLevel    string      `yaml:"LogLevel"`
	Sock5Proxy  Sock5Proxy  `yaml:"Sock5Proxy"`
	TelegramApp TelegramApp `yaml:"TelegramApp"`
	Host        Host        `yaml:"Host"`
	Store       Store       `yaml:"Store"`
	Report      Report      `yaml:"Report"`
	Loop        Loop        `yaml:"Loop"`
	Maintenance Maintenance `yaml:"Maintenance"`
	API         API         `yaml:"API"`
}

var defaultTipPatterns = []string{
	"退出了外部群", "移出了群聊", "邀请你加入了", "修改群名为", "此群为外部群", "加入了外部群",
	"left the external group", "removed you from the group chat", "invited you to join",
	"changed the group name to", "This is an external group", "joined the external group",
}

var defaultRecentPatterns = []string{
	"刚刚", "分钟前", "上午", "下午", "昨天", "星期", "日程", "会议", ":",
	"Just now", "mins ago", "min ago", "Yesterday",
}

var defaultInviteMarkers = []string{"邀请你加入群聊", "invited you to join a group chat"}

func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse 解析配置内容，补全默认值并叠加环境变量
func Parse(data []byte) (*Config, error) {
	var c Config
	err := yaml.Unmarshal(data, &c)
	if err != nil {
		return nil, err
	}

	// 开发环境允许从 .env 读取敏感配置
	_ = godotenv.Load()
	c.applyEnv()
	c.applyDefaults()

	// 验证配置
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("STORE_DSN"); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv("REPORT_TOKEN"); v != "" {
		c.Report.Token = v
	}
	if v := os.Getenv("TELEGRAM_API_HASH"); v != "" {
		c.TelegramApp.ApiHash = v
	}
}

func (c *Config) applyDefaults() {
	if c.Host.Timeout <= 0 {
		c.Host.Timeout = 10
	}
	if c.Host.HomePage == "" {
		c.Host.HomePage = "WwMainActivity"
	}
	if c.Host.ImageViewerPage == "" {
		c.Host.ImageViewerPage = "ShowImageController"
	}
	if c.Host.InvitePage == "" {
		c.Host.InvitePage = "JsWebActivity"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.Driver == "sqlite" && c.Store.DSN == "" {
		c.Store.DSN = "file:data/sqlite.db?mode=rwc&_journal_mode=WAL"
	}
	if c.TelegramApp.DataDir == "" {
		c.TelegramApp.DataDir = "data"
	}
	if c.Report.RetryTimes <= 0 {
		c.Report.RetryTimes = 3
	}
	if c.Report.RetryInterval <= 0 {
		c.Report.RetryInterval = 2
	}

	l := &c.Loop
	if l.PollInterval <= 0 {
		l.PollInterval = 5000
	}
	if l.PopInterval <= 0 {
		l.PopInterval = 1500
	}
	if l.ChangePage <= 0 {
		l.ChangePage = 1000
	}
	if l.LongInterval <= 0 {
		l.LongInterval = 5000
	}
	if l.RecoveryInterval <= 0 {
		l.RecoveryInterval = 5000
	}
	if l.ReconcileEvery <= 0 {
		l.ReconcileEvery = 600
	}
	if l.ReadTimeout <= 0 {
		l.ReadTimeout = 60
	}
	if len(l.TipPatterns) == 0 {
		l.TipPatterns = defaultTipPatterns
	}
	if len(l.RecentPatterns) == 0 {
		l.RecentPatterns = defaultRecentPatterns
	}
	if len(l.InviteMarkers) == 0 {
		l.InviteMarkers = defaultInviteMarkers
	}

	m := &c.Maintenance
	if m.WatchdogCron == "" {
		m.WatchdogCron = "* * * * *"
	}
	if m.CleanupCron == "" {
		m.CleanupCron = "0 4 * * *"
	}
	if m.RetentionDays <= 0 {
		m.RetentionDays = 30
	}
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	// 验证 Host
	if c.Host.BaseURL == "" {
		return fmt.Errorf("Host.BaseURL 不能为空")
	}

	// 验证 Store
	switch c.Store.Driver {
	case "sqlite", "redis", "postgres":
	default:
		return fmt.Errorf("Store.Driver 必须是 'sqlite', 'redis' 或 'postgres'")
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("Store.DSN 不能为空")
	}

	// 验证 Report
	if c.Report.URL == "" {
		return fmt.Errorf("Report.URL 不能为空")
	}
	if !strings.HasPrefix(c.Report.URL, "http://") && !strings.HasPrefix(c.Report.URL, "https://") {
		return fmt.Errorf("Report.URL 必须以 http:// 或 https:// 开头")
	}

	// 验证 TelegramApp
	if c.TelegramApp.Enable {
		if c.TelegramApp.ApiId == 0 {
			return fmt.Errorf("TelegramApp.ApiId 不能为空")
		}
		if c.TelegramApp.ApiHash == "" {
			return fmt.Errorf("TelegramApp.ApiHash 不能为空")
		}
		if len(c.TelegramApp.NotifyUserIds) == 0 {
			return fmt.Errorf("TelegramApp.NotifyUserIds 不能为空（当 TelegramApp.Enable 为 true 时）")
		}
	}

	if c.Maintenance.RetentionDays < 0 {
		return fmt.Errorf("Maintenance.RetentionDays 必须 >= 0")
	}
	return nil
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// Poll 轮询间隔
func (l Loop) Poll() time.Duration { return ms(l.PollInterval) }

// Pop 等待界面弹出
func (l Loop) Pop() time.Duration { return ms(l.PopInterval) }

func (l Loop) Page() time.Duration { return ms(l.ChangePage) }

func (l Loop) Long() time.Duration { return ms(l.LongInterval) }

func (l Loop) Recovery() time.Duration { return ms(l.RecoveryInterval) }

func (l Loop) Read() time.Duration { return time.Duration(l.ReadTimeout) * time.Second }
