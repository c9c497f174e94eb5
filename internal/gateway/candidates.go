package gateway

import (
	"net/url"
	"path"
	"strings"
)

// CandidateInput 是候选构建的输入。Host 用于判断 Referer 是否同源，可为空。
type CandidateInput struct {
	Path    string
	Referer string
	Host    string
}

// Candidates 是按优先级排列、去重后的对象 key，均不带前导斜杠。
type Candidates []string

const indexDocument = "index.html"

// BuildCandidates 把浏览器路径转换为需要依次尝试的对象 key：
//
//	/                → index.html
//	/about           → about/index.html, about.html
//	/css/site.css    → css/site.css
//
// 带扩展名的请求若来自同源、非根目录的 Referer，且浏览器解析相对地址时
// 使用的目录与 Referer 所在目录不同，会额外把按 Referer 目录修正后的 key
// 排在最前面。
func BuildCandidates(in CandidateInput) Candidates {
	key := cleanKey(in.Path)
	if key == "" {
		return Candidates{indexDocument}
	}

	if !strings.Contains(key, ".") {
		return Candidates{key + "/" + indexDocument, key + ".html"}
	}

	var list Candidates
	if corrected, ok := refererCorrection(key, in.Referer, in.Host); ok {
		list = append(list, corrected)
	}
	return appendUnique(list, key)
}

// cleanKey 去掉前导斜杠、合并重复斜杠并消解 . 与 .. 段。
func cleanKey(raw string) string {
	if raw == "" {
		return ""
	}
	cleaned := path.Clean("/" + raw)
	return strings.TrimPrefix(cleaned, "/")
}

func refererCorrection(key, referer, host string) (string, bool) {
	if referer == "" {
		return "", false
	}
	ref, err := url.Parse(referer)
	if err != nil {
		return "", false
	}
	if host != "" && ref.Host != "" && !strings.EqualFold(ref.Host, host) {
		return "", false
	}
	refPath := ref.Path
	if refPath == "" || refPath == "/" {
		return "", false
	}

	// 浏览器总是以最后一个斜杠之前的部分作为相对地址的基准目录。
	browserDir := refPath[:strings.LastIndex(refPath, "/")+1]
	refDir := refererDirectory(refPath)
	if browserDir == refDir {
		return "", false
	}

	requested := "/" + key
	if !strings.HasPrefix(requested, browserDir) {
		return "", false
	}
	corrected := cleanKey(refDir + requested[len(browserDir):])
	if corrected == "" || corrected == key {
		return "", false
	}
	return corrected, true
}

// refererDirectory 返回 Referer 文档实际所在的目录：带扩展名的文件取其父目录，
// 无扩展名的路由视为目录本身。
func refererDirectory(refPath string) string {
	lastSlash := strings.LastIndex(refPath, "/")
	if strings.Contains(refPath[lastSlash+1:], ".") {
		return refPath[:lastSlash+1]
	}
	if strings.HasSuffix(refPath, "/") {
		return refPath
	}
	return refPath + "/"
}

func appendUnique(list Candidates, keys ...string) Candidates {
	for _, key := range keys {
		dup := false
		for _, existing := range list {
			if existing == key {
				dup = true
				break
			}
		}
		if !dup {
			list = append(list, key)
		}
	}
	return list
}
