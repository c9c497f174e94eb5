package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// 站点键的来源。
const (
	SourceNative   = "native"
	SourceDomain   = "domain"
	SourceIdentity = "identity"
)

// SiteRoute 是一次请求解析出的站点信息，供网关处理器直接复用。
type SiteRoute struct {
	// SiteKey 是注册表中的站点标识。
	SiteKey string
	// Host 为规范化后的主机名（小写、去端口、去结尾点）。
	Host string
	// Source 记录站点键来自原生子域、自定义域名表还是主机名本身。
	Source string
	// ListenPort 记录当前监听端口，方便日志输出。
	ListenPort int
}

// DomainLookup 是自定义/历史域名表的查询能力，registry.Registry 满足该接口。
type DomainLookup interface {
	SiteForDomain(ctx context.Context, host string) (string, bool, error)
}

// DomainResolver 依次尝试：原生子域剥离 → 域名表 → 主机名本身。
type DomainResolver struct {
	nativeDomain string
	lookup       DomainLookup
	listenPort   int
}

// NewDomainResolver 创建解析器。nativeDomain 为空时跳过子域剥离，lookup 为空时跳过域名表。
func NewDomainResolver(nativeDomain string, lookup DomainLookup, listenPort int) *DomainResolver {
	return &DomainResolver{
		nativeDomain: normalizeDomain(nativeDomain),
		lookup:       lookup,
		listenPort:   listenPort,
	}
}

// Resolve 根据 Host 或 Host:port 计算站点键。只有域名表查询失败才返回 error。
func (r *DomainResolver) Resolve(ctx context.Context, rawHost string) (*SiteRoute, error) {
	host, _ := normalizeHost(rawHost)
	if host == "" {
		return nil, errors.New("request host is empty")
	}
	route := &SiteRoute{Host: host, ListenPort: r.listenPort}

	if r.nativeDomain != "" {
		if sub, ok := strings.CutSuffix(host, "."+r.nativeDomain); ok && sub != "" {
			route.SiteKey = strings.TrimPrefix(sub, "www.")
			route.Source = SourceNative
			return route, nil
		}
	}

	if r.lookup != nil {
		for _, candidate := range hostVariants(host) {
			key, ok, err := r.lookup.SiteForDomain(ctx, candidate)
			if err != nil {
				return nil, fmt.Errorf("resolve domain %s: %w", host, err)
			}
			if ok {
				route.SiteKey = key
				route.Source = SourceDomain
				return route, nil
			}
		}
	}

	route.SiteKey = host
	route.Source = SourceIdentity
	return route, nil
}

// hostVariants 返回需要查询的主机名，带 www. 前缀时额外尝试裸域。
func hostVariants(host string) []string {
	if bare, ok := strings.CutPrefix(host, "www."); ok && bare != "" {
		return []string{host, bare}
	}
	return []string{host}
}

func normalizeDomain(domain string) string {
	host, _ := normalizeHost(domain)
	return host
}

func normalizeHost(raw string) (string, int) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", 0
	}

	host := raw
	port := 0

	if strings.Contains(raw, ":") {
		if h, p, err := net.SplitHostPort(raw); err == nil {
			host = h
			if parsedPort, err := strconv.Atoi(p); err == nil {
				port = parsedPort
			}
		} else if idx := strings.LastIndex(raw, ":"); idx > -1 && strings.Count(raw[idx+1:], ":") == 0 {
			if parsedPort, err := strconv.Atoi(raw[idx+1:]); err == nil {
				host = raw[:idx]
				port = parsedPort
			}
		}
	}

	host = strings.TrimSuffix(host, ".")
	host = strings.ToLower(host)
	return host, port
}
