package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// 内容后端类型。
const (
	BackendGateway = "gateway"
	BackendKubo    = "kubo"
)

// 站点注册表存储类型。
const (
	RegistryStatic  = "static"
	RegistryRedis   = "redis"
	RegistryLevelDB = "leveldb"
)

// GlobalConfig 描述全局运行时行为，所有站点共享同一份参数。
type GlobalConfig struct {
	ListenPort         int      `mapstructure:"ListenPort"`
	LogLevel           string   `mapstructure:"LogLevel"`
	LogFilePath        string   `mapstructure:"LogFilePath"`
	LogMaxSize         int      `mapstructure:"LogMaxSize"`
	LogMaxBackups      int      `mapstructure:"LogMaxBackups"`
	LogCompress        bool     `mapstructure:"LogCompress"`
	UpstreamTimeout    Duration `mapstructure:"UpstreamTimeout"`
	AnalyticsTimeout   Duration `mapstructure:"AnalyticsTimeout"`
	AnalyticsEndpoint  string   `mapstructure:"AnalyticsEndpoint"`
	Backend            string   `mapstructure:"Backend"`
	GatewayURL         string   `mapstructure:"GatewayURL"`
	KuboAPI            string   `mapstructure:"KuboAPI"`
	NativeDomain       string   `mapstructure:"NativeDomain"`
	PinParam           string   `mapstructure:"PinParam"`
	OriginalHostHeader string   `mapstructure:"OriginalHostHeader"`
	Registry           string   `mapstructure:"Registry"`
	RedisAddr          string   `mapstructure:"RedisAddr"`
	RedisPassword      string   `mapstructure:"RedisPassword"`
	RedisDB            int      `mapstructure:"RedisDB"`
	LevelDBPath        string   `mapstructure:"LevelDBPath"`
	SitesFile          string   `mapstructure:"SitesFile"`
}

// RedirectConfig 对应 [[Site.Redirect]]，字段含义与注册表中的 JSON 规则一致。
type RedirectConfig struct {
	Source      string `mapstructure:"Source" yaml:"source"`
	Destination string `mapstructure:"Destination" yaml:"destination"`
	Status      int    `mapstructure:"Status" yaml:"status"`
	Force       bool   `mapstructure:"Force" yaml:"force"`
}

// SiteConfig 描述一个静态注册的站点，供 static 注册表或 -seed 使用。
type SiteConfig struct {
	Key           string           `mapstructure:"Key" yaml:"key"`
	CID           string           `mapstructure:"CID" yaml:"cid"`
	Contract      string           `mapstructure:"Contract" yaml:"contract"`
	Org           string           `mapstructure:"Org" yaml:"org"`
	Plan          string           `mapstructure:"Plan" yaml:"plan"`
	Domains       []string         `mapstructure:"Domains" yaml:"domains"`
	RedirectsFile string           `mapstructure:"RedirectsFile" yaml:"redirectsFile"`
	Redirects     []RedirectConfig `mapstructure:"Redirect" yaml:"redirects"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Sites  []SiteConfig `mapstructure:"Site"`
}

// HasRedirects 表示站点是否声明了任何跳转规则来源。
func (s SiteConfig) HasRedirects() bool {
	return len(s.Redirects) > 0 || strings.TrimSpace(s.RedirectsFile) != ""
}

// SiteSummaries 返回 "站点键:自定义域名数量" 形式的摘要，供启动日志使用。
func SiteSummaries(sites []SiteConfig) []string {
	if len(sites) == 0 {
		return nil
	}
	result := make([]string, len(sites))
	for i, site := range sites {
		result[i] = fmt.Sprintf("%s:%d", site.Key, len(site.Domains))
	}
	return result
}
