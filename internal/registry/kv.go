package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// kvStore 抽象 redis/leveldb 的最小读写能力。get 在 key 不存在时返回 ok=false。
type kvStore interface {
	get(ctx context.Context, key string) (string, bool, error)
	putAll(ctx context.Context, entries map[string]string) error
	close() error
}

// KVRegistry 基于共享 key 布局实现 Registry，底层可以是 redis 或 leveldb。
type KVRegistry struct {
	kind  string
	store kvStore
}

// Kind 返回底层存储类型，便于日志输出。
func (r *KVRegistry) Kind() string {
	return r.kind
}

func (r *KVRegistry) ContentID(ctx context.Context, siteKey string) (string, bool, error) {
	value, ok, err := r.store.get(ctx, siteCIDKey(siteKey))
	if err != nil {
		return "", false, fmt.Errorf("%s get cid: %w", r.kind, err)
	}
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		return "", false, nil
	}
	return value, true, nil
}

func (r *KVRegistry) Redirects(ctx context.Context, siteKey string) ([]Rule, error) {
	raw, ok, err := r.store.get(ctx, siteRedirectsKey(siteKey))
	if err != nil {
		return nil, fmt.Errorf("%s get redirects: %w", r.kind, err)
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var rules []Rule
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		return nil, fmt.Errorf("decode redirects for %s: %w", siteKey, err)
	}
	return rules, nil
}

func (r *KVRegistry) Contract(ctx context.Context, siteKey string) (string, error) {
	value, _, err := r.store.get(ctx, siteContractKey(siteKey))
	if err != nil {
		return "", fmt.Errorf("%s get contract: %w", r.kind, err)
	}
	return value, nil
}

func (r *KVRegistry) Org(ctx context.Context, siteKey string) (string, error) {
	value, _, err := r.store.get(ctx, siteOrgKey(siteKey))
	if err != nil {
		return "", fmt.Errorf("%s get org: %w", r.kind, err)
	}
	return value, nil
}

func (r *KVRegistry) Plan(ctx context.Context, orgID string) (string, error) {
	if strings.TrimSpace(orgID) == "" {
		return "", nil
	}
	value, _, err := r.store.get(ctx, orgPlanKey(orgID))
	if err != nil {
		return "", fmt.Errorf("%s get plan: %w", r.kind, err)
	}
	return value, nil
}

func (r *KVRegistry) SiteForDomain(ctx context.Context, host string) (string, bool, error) {
	value, ok, err := r.store.get(ctx, domainKey(host))
	if err != nil {
		return "", false, fmt.Errorf("%s get domain: %w", r.kind, err)
	}
	if !ok || value == "" {
		return "", false, nil
	}
	return value, true, nil
}

// Seed 把站点记录整体写入存储；已存在的 key 会被覆盖。
func (r *KVRegistry) Seed(ctx context.Context, sites []Site) error {
	entries := make(map[string]string)
	for _, site := range sites {
		key := normalizeKey(site.Key)
		if key == "" {
			return fmt.Errorf("site key is required")
		}
		entries[siteCIDKey(key)] = site.CID
		if site.Contract != "" {
			entries[siteContractKey(key)] = site.Contract
		}
		if site.Org != "" {
			entries[siteOrgKey(key)] = site.Org
			if site.Plan != "" {
				entries[orgPlanKey(site.Org)] = site.Plan
			}
		}
		if len(site.Redirects) > 0 {
			encoded, err := json.Marshal(site.Redirects)
			if err != nil {
				return fmt.Errorf("encode redirects for %s: %w", key, err)
			}
			entries[siteRedirectsKey(key)] = string(encoded)
		}
		for _, domain := range site.Domains {
			entries[domainKey(domain)] = key
		}
	}
	if err := r.store.putAll(ctx, entries); err != nil {
		return fmt.Errorf("%s seed: %w", r.kind, err)
	}
	return nil
}

// Close 释放底层连接或文件句柄。
func (r *KVRegistry) Close() error {
	return r.store.close()
}
