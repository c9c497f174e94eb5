package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const supportedBackendList = "gateway|kubo"
const supportedRegistryList = "static|redis|leveldb"

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.AnalyticsTimeout.DurationValue() <= 0 {
		return newFieldError("Global.AnalyticsTimeout", "必须大于 0")
	}
	if strings.ContainsAny(g.PinParam, " &=?#") {
		return newFieldError("Global.PinParam", "不能包含空格或 URL 分隔符")
	}

	switch g.Backend {
	case BackendGateway:
		if err := validateUpstream(g.GatewayURL); err != nil {
			return fmt.Errorf("Global.GatewayURL: %w", err)
		}
	case BackendKubo:
		if err := validateUpstream(g.KuboAPI); err != nil {
			return fmt.Errorf("Global.KuboAPI: %w", err)
		}
	default:
		return newFieldError("Global.Backend", "仅支持 "+supportedBackendList)
	}

	switch g.Registry {
	case RegistryStatic:
		if len(c.Sites) == 0 {
			return errors.New("static 注册表至少需要配置一个 Site")
		}
	case RegistryRedis:
		if strings.TrimSpace(g.RedisAddr) == "" {
			return newFieldError("Global.RedisAddr", "redis 注册表必须配置地址")
		}
	case RegistryLevelDB:
		if strings.TrimSpace(g.LevelDBPath) == "" {
			return newFieldError("Global.LevelDBPath", "leveldb 注册表必须配置路径")
		}
	default:
		return newFieldError("Global.Registry", "仅支持 "+supportedRegistryList)
	}

	if g.AnalyticsEndpoint != "" {
		if err := validateUpstream(g.AnalyticsEndpoint); err != nil {
			return fmt.Errorf("Global.AnalyticsEndpoint: %w", err)
		}
	}

	seenKeys := map[string]struct{}{}
	seenDomains := map[string]string{}
	for i := range c.Sites {
		site := &c.Sites[i]
		if site.Key == "" {
			return newFieldError("Site[].Key", "不能为空")
		}
		if _, exists := seenKeys[site.Key]; exists {
			return newFieldError(siteField(site.Key, "Key"), "重复")
		}
		seenKeys[site.Key] = struct{}{}

		for _, domain := range site.Domains {
			if err := validateDomain(domain); err != nil {
				return fmt.Errorf("%s: %w", siteField(site.Key, "Domains"), err)
			}
			if owner, exists := seenDomains[domain]; exists {
				return newFieldError(siteField(site.Key, "Domains"), fmt.Sprintf("%s 已被站点 %s 使用", domain, owner))
			}
			seenDomains[domain] = site.Key
		}

		for idx, rule := range site.Redirects {
			field := siteField(site.Key, fmt.Sprintf("Redirect[%d]", idx))
			if strings.TrimSpace(rule.Source) == "" {
				return newFieldError(field+".Source", "不能为空")
			}
			if strings.TrimSpace(rule.Destination) == "" {
				return newFieldError(field+".Destination", "不能为空")
			}
			if rule.Status != 0 && (rule.Status < 300 || rule.Status > 399) {
				return newFieldError(field+".Status", "必须为 3xx")
			}
		}
	}

	return nil
}

func validateDomain(domain string) error {
	if domain == "" {
		return errors.New("Domain 不能为空")
	}
	if strings.Contains(domain, "/") {
		return errors.New("Domain 不允许包含路径")
	}
	if strings.Contains(domain, " ") {
		return errors.New("Domain 不允许包含空格")
	}
	if strings.HasPrefix(domain, "http") {
		return errors.New("Domain 不应包含协议头")
	}
	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
