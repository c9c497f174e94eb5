package registry

import "strings"

// 共享注册表的 key 布局：
//
//	site:<key>:cid        当前发布的内容标识
//	site:<key>:redirects  JSON 数组形式的跳转规则
//	site:<key>:contract   合约 ID
//	site:<key>:org        所属组织
//	org:<id>:plan         组织套餐
//	domain:<host>         自定义/历史域名 → 站点键
func siteCIDKey(site string) string       { return "site:" + normalizeKey(site) + ":cid" }
func siteRedirectsKey(site string) string { return "site:" + normalizeKey(site) + ":redirects" }
func siteContractKey(site string) string  { return "site:" + normalizeKey(site) + ":contract" }
func siteOrgKey(site string) string       { return "site:" + normalizeKey(site) + ":org" }
func orgPlanKey(org string) string        { return "org:" + strings.TrimSpace(org) + ":plan" }
func domainKey(host string) string        { return "domain:" + normalizeKey(host) }

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(key), "."))
}
