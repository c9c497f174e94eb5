package registry

import (
	"context"
	"errors"
)

// ErrSiteNotFound 表示站点键在注册表中不存在，或未发布任何内容标识。
var ErrSiteNotFound = errors.New("site not found")

// Rule 对应注册表中 JSON 数组的一项跳转规则。
type Rule struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Status      int    `json:"status,omitempty"`
	Force       bool   `json:"force,omitempty"`
}

// NotFoundSource 是保留给自定义 404 页面的规则 source。
const NotFoundSource = "404"

// Site 聚合一个站点在注册表中的全部记录，主要用于 seed 与诊断输出。
type Site struct {
	Key       string   `json:"key"`
	CID       string   `json:"cid"`
	Contract  string   `json:"contract,omitempty"`
	Org       string   `json:"org,omitempty"`
	Plan      string   `json:"plan,omitempty"`
	Domains   []string `json:"domains,omitempty"`
	Redirects []Rule   `json:"redirects,omitempty"`
}

// Registry 是网关只读依赖的站点注册表。缺失的值以空字符串/false 表示，
// 只有存储层故障才返回 error。
type Registry interface {
	ContentID(ctx context.Context, siteKey string) (string, bool, error)
	Redirects(ctx context.Context, siteKey string) ([]Rule, error)
	Contract(ctx context.Context, siteKey string) (string, error)
	Org(ctx context.Context, siteKey string) (string, error)
	Plan(ctx context.Context, orgID string) (string, error)
	SiteForDomain(ctx context.Context, host string) (string, bool, error)
}

// Seeder 由可写存储实现，用于把静态配置推送到共享注册表。
type Seeder interface {
	Seed(ctx context.Context, sites []Site) error
}
