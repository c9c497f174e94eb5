package gateway

import (
	"path"
	"strings"
)

const (
	cacheControlContent  = "public, max-age=3600"
	cacheControlBlocked  = "public, max-age=86400"
	cacheControlRedirect = "no-cache"
	defaultContentType   = "application/octet-stream"
)

// Tables 汇总按扩展名查询的只读数据。构建后不再修改，可在请求间共享。
type Tables struct {
	contentTypes map[string]string
	media        map[string]struct{}
	blocked      map[string]struct{}
}

// DefaultTables 返回网关内置的扩展名表。
func DefaultTables() *Tables {
	return &Tables{
		contentTypes: map[string]string{
			"html":        "text/html; charset=utf-8",
			"htm":         "text/html; charset=utf-8",
			"css":         "text/css; charset=utf-8",
			"js":          "application/javascript; charset=utf-8",
			"mjs":         "application/javascript; charset=utf-8",
			"json":        "application/json",
			"map":         "application/json",
			"webmanifest": "application/manifest+json",
			"xml":         "application/xml",
			"txt":         "text/plain; charset=utf-8",
			"md":          "text/markdown; charset=utf-8",
			"csv":         "text/csv; charset=utf-8",
			"svg":         "image/svg+xml",
			"png":         "image/png",
			"jpg":         "image/jpeg",
			"jpeg":        "image/jpeg",
			"gif":         "image/gif",
			"webp":        "image/webp",
			"avif":        "image/avif",
			"ico":         "image/x-icon",
			"bmp":         "image/bmp",
			"woff":        "font/woff",
			"woff2":       "font/woff2",
			"ttf":         "font/ttf",
			"otf":         "font/otf",
			"eot":         "application/vnd.ms-fontobject",
			"pdf":         "application/pdf",
			"zip":         "application/zip",
			"wasm":        "application/wasm",
			"mp3":         "audio/mpeg",
			"m4a":         "audio/mp4",
			"aac":         "audio/aac",
			"wav":         "audio/wav",
			"flac":        "audio/flac",
			"oga":         "audio/ogg",
			"ogg":         "audio/ogg",
			"opus":        "audio/opus",
			"mp4":         "video/mp4",
			"m4v":         "video/mp4",
			"mov":         "video/quicktime",
			"webm":        "video/webm",
			"ogv":         "video/ogg",
			"mkv":         "video/x-matroska",
		},
		media: setOf(
			"mp3", "mp4", "m4a", "m4v", "mov", "webm", "ogg", "oga", "ogv",
			"wav", "flac", "aac", "opus", "mkv",
		),
		blocked: setOf(
			"php", "php3", "php4", "php5", "phtml", "asp", "aspx", "ashx",
			"jsp", "jspx", "cgi", "pl", "py", "rb", "sh", "env",
		),
	}
}

func setOf(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// ContentType 返回扩展名对应的类型；未知扩展名返回 false。
func (t *Tables) ContentType(ext string) (string, bool) {
	ct, ok := t.contentTypes[ext]
	return ct, ok
}

// IsMedia 表示该扩展名是否走区间响应。
func (t *Tables) IsMedia(ext string) bool {
	_, ok := t.media[ext]
	return ok
}

// IsBlocked 表示该扩展名是否在抓取前直接拒绝。
func (t *Tables) IsBlocked(ext string) bool {
	_, ok := t.blocked[ext]
	return ok
}

// resolveContentType 依次使用扩展名表、上游声明的类型和默认值。
func (t *Tables) resolveContentType(key, upstream string) string {
	if ext := extension(key); ext != "" {
		if ct, ok := t.ContentType(ext); ok {
			return ct
		}
	}
	if upstream = strings.TrimSpace(upstream); upstream != "" {
		return upstream
	}
	return defaultContentType
}

// extension 返回最后一个路径段的小写扩展名（不含点）。
func extension(p string) string {
	ext := path.Ext(path.Base(p))
	if ext == "" || ext == "." {
		return ""
	}
	return strings.ToLower(ext[1:])
}
