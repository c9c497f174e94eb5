package registry

import (
	"context"
	"fmt"

	"github.com/orbgate/orbgate/internal/config"
)

// StaticRegistry 在启动时由配置构建，运行期只读，因此无需加锁。
type StaticRegistry struct {
	sites   map[string]Site
	domains map[string]string
	plans   map[string]string
	ordered []Site
}

// SitesFromConfig 把配置中的站点（含 _redirects 文件）转换为注册表记录。
// 配置内联的规则排在文件规则之前。
func SitesFromConfig(cfgSites []config.SiteConfig) ([]Site, error) {
	sites := make([]Site, 0, len(cfgSites))
	for _, sc := range cfgSites {
		site := Site{
			Key:      normalizeKey(sc.Key),
			CID:      sc.CID,
			Contract: sc.Contract,
			Org:      sc.Org,
			Plan:     sc.Plan,
			Domains:  append([]string(nil), sc.Domains...),
		}
		for _, rc := range sc.Redirects {
			site.Redirects = append(site.Redirects, Rule{
				Source:      rc.Source,
				Destination: rc.Destination,
				Status:      rc.Status,
				Force:       rc.Force,
			})
		}
		if sc.RedirectsFile != "" {
			fileRules, err := LoadRedirectsFile(sc.RedirectsFile)
			if err != nil {
				return nil, fmt.Errorf("site %s: %w", site.Key, err)
			}
			site.Redirects = append(site.Redirects, fileRules...)
		}
		sites = append(sites, site)
	}
	return sites, nil
}

// NewStatic 根据站点列表构建静态注册表，重复的站点键或域名会返回错误。
func NewStatic(sites []Site) (*StaticRegistry, error) {
	r := &StaticRegistry{
		sites:   make(map[string]Site, len(sites)),
		domains: make(map[string]string),
		plans:   make(map[string]string),
	}
	for _, site := range sites {
		key := normalizeKey(site.Key)
		if key == "" {
			return nil, fmt.Errorf("site key is required")
		}
		if _, exists := r.sites[key]; exists {
			return nil, fmt.Errorf("duplicate site key %s", key)
		}
		site.Key = key
		r.sites[key] = site
		r.ordered = append(r.ordered, site)
		for _, domain := range site.Domains {
			host := normalizeKey(domain)
			if owner, exists := r.domains[host]; exists {
				return nil, fmt.Errorf("domain %s already mapped to %s", host, owner)
			}
			r.domains[host] = key
		}
		if site.Org != "" && site.Plan != "" {
			r.plans[site.Org] = site.Plan
		}
	}
	return r, nil
}

func (r *StaticRegistry) ContentID(_ context.Context, siteKey string) (string, bool, error) {
	site, ok := r.sites[normalizeKey(siteKey)]
	if !ok || site.CID == "" {
		return "", false, nil
	}
	return site.CID, true, nil
}

func (r *StaticRegistry) Redirects(_ context.Context, siteKey string) ([]Rule, error) {
	site, ok := r.sites[normalizeKey(siteKey)]
	if !ok {
		return nil, nil
	}
	return append([]Rule(nil), site.Redirects...), nil
}

func (r *StaticRegistry) Contract(_ context.Context, siteKey string) (string, error) {
	return r.sites[normalizeKey(siteKey)].Contract, nil
}

func (r *StaticRegistry) Org(_ context.Context, siteKey string) (string, error) {
	return r.sites[normalizeKey(siteKey)].Org, nil
}

func (r *StaticRegistry) Plan(_ context.Context, orgID string) (string, error) {
	return r.plans[orgID], nil
}

func (r *StaticRegistry) SiteForDomain(_ context.Context, host string) (string, bool, error) {
	key, ok := r.domains[normalizeKey(host)]
	return key, ok, nil
}

// Sites 按配置顺序返回全部站点，供 -seed 与诊断接口使用。
func (r *StaticRegistry) Sites() []Site {
	return append([]Site(nil), r.ordered...)
}
