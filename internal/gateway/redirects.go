package gateway

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/orbgate/orbgate/internal/registry"
)

// RedirectRequest 描述参与匹配的请求信息。Scheme/Host 用于把相对目标补全为绝对地址。
// Query 为不含 "?" 的原始查询串，参与自跳转判断。
type RedirectRequest struct {
	Path   string
	Query  string
	Scheme string
	Host   string
}

// Redirect 是命中的跳转结果。
type Redirect struct {
	Location string
	Status   int
	Rule     registry.Rule
}

// RedirectEngine 在任何抓取之前评估站点的跳转规则。
type RedirectEngine struct {
	logger *logrus.Logger
}

// NewRedirectEngine 创建跳转引擎，logger 用于记录被跳过的异常规则。
func NewRedirectEngine(logger *logrus.Logger) *RedirectEngine {
	return &RedirectEngine{logger: logger}
}

// normalizedRule 是单条规则规范化后的形态。
type normalizedRule struct {
	source    string
	destPath  string
	destQuery string
	location  string
}

// Match 按列表顺序返回第一条命中的规则。保留的 404 规则、目标即当前路径的规则、
// 目标地址无法解析的规则都会被跳过。
func (e *RedirectEngine) Match(rules []registry.Rule, req RedirectRequest) (*Redirect, bool) {
	current := ensureLeadingSlash(req.Path)
	for idx, rule := range rules {
		if strings.TrimSpace(rule.Source) == "" || rule.Source == registry.NotFoundSource {
			continue
		}
		norm, err := normalizeRule(rule, req)
		if err != nil {
			e.logSkipped(idx, rule, err)
			continue
		}
		if isSelfRedirect(current, req.Query, norm) {
			continue
		}
		if !ruleMatches(current, norm.source, rule.Force) {
			continue
		}
		status := rule.Status
		if status == 0 {
			status = http.StatusMovedPermanently
		}
		return &Redirect{Location: norm.location, Status: status, Rule: rule}, true
	}
	return nil, false
}

// NotFoundPage 返回保留的 404 规则目标。
func NotFoundPage(rules []registry.Rule) (string, bool) {
	for _, rule := range rules {
		if rule.Source == registry.NotFoundSource && strings.TrimSpace(rule.Destination) != "" {
			return rule.Destination, true
		}
	}
	return "", false
}

func normalizeRule(rule registry.Rule, req RedirectRequest) (normalizedRule, error) {
	dest := strings.TrimSpace(rule.Destination)
	if dest == "" {
		return normalizedRule{}, fmt.Errorf("empty destination")
	}
	parsed, err := url.Parse(dest)
	if err != nil {
		return normalizedRule{}, err
	}

	norm := normalizedRule{source: ensureLeadingSlash(strings.TrimSpace(rule.Source))}
	norm.destQuery = parsed.RawQuery
	if parsed.IsAbs() && parsed.Host != "" {
		norm.destPath = ensureLeadingSlash(parsed.Path)
		norm.location = dest
		return norm, nil
	}
	if parsed.Scheme != "" {
		return normalizedRule{}, fmt.Errorf("unsupported destination scheme %q", parsed.Scheme)
	}

	norm.destPath = ensureLeadingSlash(parsed.Path)
	relative := ensureLeadingSlash(dest)
	if req.Host == "" {
		norm.location = relative
		return norm, nil
	}
	scheme := req.Scheme
	if scheme == "" {
		scheme = "https"
	}
	norm.location = scheme + "://" + req.Host + relative
	return norm, nil
}

// isSelfRedirect 比较路径与查询串；片段不会随请求发送，因此不参与比较。
func isSelfRedirect(current, query string, norm normalizedRule) bool {
	if trimTrailingSlash(current) != trimTrailingSlash(norm.destPath) {
		return false
	}
	return query == norm.destQuery
}

func ruleMatches(current, source string, force bool) bool {
	if trimTrailingSlash(current) == trimTrailingSlash(source) {
		return true
	}
	return force && strings.HasPrefix(current, source)
}

func (e *RedirectEngine) logSkipped(idx int, rule registry.Rule, err error) {
	if e.logger == nil {
		return
	}
	e.logger.WithFields(logrus.Fields{
		"action":      "redirect_match",
		"rule_index":  idx,
		"source":      rule.Source,
		"destination": rule.Destination,
	}).WithError(err).Warn("redirect_rule_skipped")
}

func ensureLeadingSlash(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}

func trimTrailingSlash(p string) string {
	if len(p) > 1 {
		return strings.TrimSuffix(p, "/")
	}
	return p
}
