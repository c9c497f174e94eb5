package registry

import (
	"fmt"
	"io"
	"os"
	"strings"

	redirects "github.com/ipfs/go-ipfs-redirects-file"
)

// ParseRedirects 把 Netlify 风格的 _redirects 文本转换成注册表规则。
//
// 末尾带 * 的 source 转为前缀匹配（Force）；状态码 404 的规则转为保留的
// 自定义 404 规则。200 重写以及 410/451 不属于跳转语义，直接忽略。
func ParseRedirects(r io.Reader) ([]Rule, error) {
	parsed, err := redirects.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse _redirects: %w", err)
	}

	rules := make([]Rule, 0, len(parsed))
	for _, item := range parsed {
		switch {
		case item.Status == 404:
			rules = append(rules, Rule{Source: NotFoundSource, Destination: item.To})
		case item.Status >= 300 && item.Status < 400:
			rule := Rule{Source: item.From, Destination: item.To, Status: item.Status}
			if strings.HasSuffix(rule.Source, "*") {
				rule.Source = strings.TrimSuffix(rule.Source, "*")
				rule.Force = true
			}
			rules = append(rules, rule)
		}
	}
	return rules, nil
}

// LoadRedirectsFile 读取并解析磁盘上的 _redirects 文件。
func LoadRedirectsFile(path string) ([]Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open _redirects: %w", err)
	}
	defer f.Close()
	return ParseRedirects(f)
}
