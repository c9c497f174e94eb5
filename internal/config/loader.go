package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)

	if cfg.Global.SitesFile != "" {
		sitesPath := cfg.Global.SitesFile
		if !filepath.IsAbs(sitesPath) {
			sitesPath = filepath.Join(filepath.Dir(path), sitesPath)
		}
		extra, err := LoadSitesFile(sitesPath)
		if err != nil {
			return nil, err
		}
		cfg.Sites = append(cfg.Sites, extra...)
		cfg.Global.SitesFile = sitesPath
	}

	for i := range cfg.Sites {
		applySiteDefaults(&cfg.Sites[i], filepath.Dir(path))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// sitesFile 是 SitesFile 指向的 YAML 文档结构。
type sitesFile struct {
	Sites []SiteConfig `yaml:"sites"`
}

// LoadSitesFile 读取 YAML 格式的站点清单，便于与主配置分开维护。
func LoadSitesFile(path string) ([]SiteConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取站点清单失败: %w", err)
	}
	var doc sitesFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("解析站点清单失败: %w", err)
	}
	return doc.Sites, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 8080)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("AnalyticsTimeout", "5s")
	v.SetDefault("Backend", BackendGateway)
	v.SetDefault("KuboAPI", "http://127.0.0.1:5001")
	v.SetDefault("PinParam", "orbVersion")
	v.SetDefault("OriginalHostHeader", "X-Original-Host")
	v.SetDefault("Registry", RegistryStatic)
	v.SetDefault("LevelDBPath", "./data/registry")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 8080
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	if g.AnalyticsTimeout.DurationValue() == 0 {
		g.AnalyticsTimeout = Duration(5 * time.Second)
	}
	g.Backend = strings.ToLower(strings.TrimSpace(g.Backend))
	if g.Backend == "" {
		g.Backend = BackendGateway
	}
	g.Registry = strings.ToLower(strings.TrimSpace(g.Registry))
	if g.Registry == "" {
		g.Registry = RegistryStatic
	}
	g.GatewayURL = strings.TrimRight(strings.TrimSpace(g.GatewayURL), "/")
	g.NativeDomain = strings.ToLower(strings.Trim(strings.TrimSpace(g.NativeDomain), "."))
	if g.PinParam == "" {
		g.PinParam = "orbVersion"
	}
	if g.OriginalHostHeader == "" {
		g.OriginalHostHeader = "X-Original-Host"
	}
}

func applySiteDefaults(s *SiteConfig, baseDir string) {
	s.Key = strings.ToLower(strings.TrimSpace(s.Key))
	s.CID = strings.TrimSpace(s.CID)
	for i, domain := range s.Domains {
		s.Domains[i] = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(domain), "."))
	}
	if s.RedirectsFile != "" && !filepath.IsAbs(s.RedirectsFile) {
		s.RedirectsFile = filepath.Join(baseDir, s.RedirectsFile)
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
