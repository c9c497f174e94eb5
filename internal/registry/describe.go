package registry

import (
	"context"
	"fmt"
)

// Describe 通过只读接口汇总一个站点的当前记录，供诊断接口输出。
// 站点没有内容标识时返回 ErrSiteNotFound。
func Describe(ctx context.Context, reg Registry, siteKey string) (*Site, error) {
	key := normalizeKey(siteKey)
	cid, ok, err := reg.ContentID(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("site %s: %w", key, ErrSiteNotFound)
	}

	site := &Site{Key: key, CID: cid}
	if site.Contract, err = reg.Contract(ctx, key); err != nil {
		return nil, err
	}
	if site.Org, err = reg.Org(ctx, key); err != nil {
		return nil, err
	}
	if site.Org != "" {
		if site.Plan, err = reg.Plan(ctx, site.Org); err != nil {
			return nil, err
		}
	}
	if site.Redirects, err = reg.Redirects(ctx, key); err != nil {
		return nil, err
	}
	return site, nil
}
