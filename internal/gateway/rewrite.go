package gateway

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// RewriteContext 是单次请求的改写参数。CurrentDirectory 为空表示根目录，
// 否则以斜杠开头并以斜杠结尾（例如 /about/）。
type RewriteContext struct {
	CurrentDirectory string
	OriginalHost     string
	Protocol         string
	PinnedVersion    string
	PinParam         string
}

// BaseURL 返回注入 <base> 时使用的绝对地址。
func (rc RewriteContext) BaseURL() string {
	scheme := rc.Protocol
	if scheme == "" {
		scheme = "https"
	}
	dir := escapeDirectory(rc.CurrentDirectory)
	if dir == "" {
		dir = "/"
	}
	return scheme + "://" + rc.OriginalHost + dir
}

// escapeDirectory 对目录逐段做百分号编码，保证拼进属性值或 url() 后不会提前闭合引号。
func escapeDirectory(dir string) string {
	if dir == "" {
		return ""
	}
	segments := strings.Split(dir, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

// Rewriter 把文档中的相对链接锚定到当前目录。实现必须幂等：
// 对输出再次改写应得到完全相同的字节。
type Rewriter interface {
	RewriteHTML(doc []byte, rc RewriteContext) []byte
	RewriteCSS(doc []byte, rc RewriteContext) []byte
}

// NewRewriter 返回基于 x/net/html 分词器的实现。
func NewRewriter() Rewriter {
	return linkRewriter{}
}

// CurrentDirectory 计算请求路径对应的目录上下文：无扩展名的路径补齐结尾斜杠，
// 带扩展名的路径截断到最后一个斜杠，根目录映射为空串。
func CurrentDirectory(requestPath string) string {
	p := ensureLeadingSlash(requestPath)
	if p == "/" {
		return ""
	}
	lastSlash := strings.LastIndex(p, "/")
	if strings.Contains(p[lastSlash+1:], ".") {
		p = p[:lastSlash+1]
	} else if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	if p == "/" {
		return ""
	}
	return p
}

var (
	schemePattern  = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*:`)
	attrPattern    = regexp.MustCompile(`\s+([^\s"'>/=]+)(?:\s*=\s*("[^"]*"|'[^']*'|[^\s"'>]+))?`)
	cssURLPattern  = regexp.MustCompile(`url\(\s*(['"]?)([^'")]*)(['"]?)\s*\)`)
	tagNamePattern = regexp.MustCompile(`^</?[^\s/>]*`)
)

type linkRewriter struct{}

// isAbsoluteRef 判断引用是否无需改写：空值、片段、协议相对地址或带 scheme 的地址。
func isAbsoluteRef(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" ||
		strings.HasPrefix(v, "#") ||
		strings.HasPrefix(v, "//") ||
		schemePattern.MatchString(v)
}

// rewriteRef 改写单个引用：相对地址补上当前目录，随后按需追加版本参数。
func rewriteRef(v string, rc RewriteContext) string {
	if isAbsoluteRef(v) {
		return v
	}
	out := v
	if !strings.HasPrefix(out, "/") && rc.CurrentDirectory != "" {
		out = escapeDirectory(rc.CurrentDirectory) + out
	}
	if rc.PinnedVersion != "" && rc.PinParam != "" {
		out = appendQueryParam(out, rc.PinParam, rc.PinnedVersion)
	}
	return out
}

// appendQueryParam 在片段之前追加参数；已存在同名参数时保持原样。
func appendQueryParam(ref, name, value string) string {
	base, fragment := ref, ""
	if idx := strings.IndexByte(ref, '#'); idx >= 0 {
		base, fragment = ref[:idx], ref[idx:]
	}
	if idx := strings.IndexByte(base, '?'); idx >= 0 {
		for _, pair := range strings.Split(base[idx+1:], "&") {
			key, _, _ := strings.Cut(pair, "=")
			if key == name {
				return ref
			}
		}
	}
	sep := "?"
	switch {
	case strings.HasSuffix(base, "?"), strings.HasSuffix(base, "&"):
		sep = ""
	case strings.Contains(base, "?"):
		sep = "&"
	}
	return base + sep + name + "=" + value + fragment
}

func (linkRewriter) RewriteCSS(doc []byte, rc RewriteContext) []byte {
	matches := cssURLPattern.FindAllSubmatchIndex(doc, -1)
	if len(matches) == 0 {
		return doc
	}
	var out bytes.Buffer
	out.Grow(len(doc))
	last := 0
	for _, m := range matches {
		openQ, closeQ := doc[m[2]:m[3]], doc[m[6]:m[7]]
		if !bytes.Equal(openQ, closeQ) {
			continue
		}
		value := string(doc[m[4]:m[5]])
		rewritten := rewriteRef(value, rc)
		if rewritten == value {
			continue
		}
		out.Write(doc[last:m[4]])
		out.WriteString(rewritten)
		last = m[5]
	}
	out.Write(doc[last:])
	return out.Bytes()
}

func (r linkRewriter) RewriteHTML(doc []byte, rc RewriteContext) []byte {
	hasBase, insertAt := scanHead(doc)

	var out bytes.Buffer
	out.Grow(len(doc) + 128)
	if !hasBase && insertAt == 0 {
		writeBaseTag(&out, rc)
	}

	z := html.NewTokenizer(bytes.NewReader(doc))
	consumed := 0
	inStyle := false
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			out.Write(doc[consumed:])
			break
		}
		raw := z.Raw()
		consumed += len(raw)

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			tag := append([]byte(nil), raw...)
			name, _ := z.TagName()
			out.Write(r.rewriteTag(tag, string(name), rc))
			inStyle = tt == html.StartTagToken && string(name) == "style"
		case html.TextToken:
			if inStyle {
				out.Write(r.RewriteCSS(raw, rc))
			} else {
				out.Write(raw)
			}
		default:
			out.Write(raw)
			inStyle = false
		}

		if !hasBase && insertAt > 0 && consumed == insertAt {
			writeBaseTag(&out, rc)
		}
	}
	return out.Bytes()
}

// rewriteTag 只在单个开始标签的原始字节内改写属性值，保留其余字节不变。
func (r linkRewriter) rewriteTag(tag []byte, name string, rc RewriteContext) []byte {
	nameEnd := len(tagNamePattern.Find(tag))
	attrs := tag[nameEnd:]
	matches := attrPattern.FindAllSubmatchIndex(attrs, -1)
	if len(matches) == 0 {
		return tag
	}

	var out bytes.Buffer
	out.Grow(len(tag) + 32)
	out.Write(tag[:nameEnd])
	last := 0
	for _, m := range matches {
		if m[4] < 0 {
			continue
		}
		attr := strings.ToLower(string(attrs[m[2]:m[3]]))
		rawValue := attrs[m[4]:m[5]]
		quote, value := splitQuoted(rawValue)

		var rewritten string
		switch {
		case (attr == "src" || attr == "href") && name != "base":
			rewritten = rewriteRef(value, rc)
		case attr == "style":
			rewritten = string(r.RewriteCSS([]byte(value), rc))
		default:
			continue
		}
		if rewritten == value {
			continue
		}
		out.Write(attrs[last:m[4]])
		out.WriteString(quote + rewritten + quote)
		last = m[5]
	}
	out.Write(attrs[last:])
	return out.Bytes()
}

func splitQuoted(raw []byte) (string, string) {
	if len(raw) >= 2 && (raw[0] == '"' || raw[0] == '\'') && raw[len(raw)-1] == raw[0] {
		return string(raw[0]), string(raw[1 : len(raw)-1])
	}
	return "", string(raw)
}

func writeBaseTag(out *bytes.Buffer, rc RewriteContext) {
	out.WriteString(`<base href="`)
	out.WriteString(html.EscapeString(rc.BaseURL()))
	out.WriteString(`">`)
}

// scanHead 预扫描文档：是否已有 <base>，以及 <base> 应插入的字节偏移。
// 存在 <head> 时为其开始标签之后；否则为开头的 DOCTYPE 之后（没有则为 0）。
func scanHead(doc []byte) (bool, int) {
	z := html.NewTokenizer(bytes.NewReader(doc))
	consumed := 0
	headEnd := -1
	doctypeEnd := 0
	leading := true
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		consumed += len(z.Raw())
		switch tt {
		case html.DoctypeToken:
			if leading {
				doctypeEnd = consumed
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			leading = false
			name, _ := z.TagName()
			switch string(name) {
			case "base":
				return true, 0
			case "head":
				if headEnd < 0 {
					headEnd = consumed
				}
			}
		case html.TextToken:
			if len(bytes.TrimSpace(z.Raw())) > 0 {
				leading = false
			}
		default:
			leading = false
		}
	}
	if headEnd >= 0 {
		return false, headEnd
	}
	return false, doctypeEnd
}
