package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/sirupsen/logrus"

	"github.com/orbgate/orbgate/internal/config"
)

// FetchOptions 控制单次对象请求。Method 为空时视为 GET；Range 为原样透传的
// "bytes=start-end" 头。
type FetchOptions struct {
	Method string
	Range  string
}

// Backend 是网关访问内容存储的唯一入口。Fetch 对缺失对象返回非 2xx 的响应，
// 只有传输层故障才返回 error；调用方负责关闭 Body。
type Backend interface {
	BaseURL(cid string) string
	Fetch(ctx context.Context, cid, key string, opts FetchOptions) (*http.Response, error)
	ContainsCID(ctx context.Context, cid string) (bool, error)
}

// ValidCID 仅做语法校验，避免把任意查询参数直接拼进上游 URL。
func ValidCID(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}
	_, err := cid.Decode(raw)
	return err == nil
}

// New 根据配置选择后端实现。client 为共享的上游 http.Client。
func New(cfg config.GlobalConfig, client *http.Client, logger *logrus.Logger) (Backend, error) {
	switch cfg.Backend {
	case config.BackendGateway, "":
		return NewGateway(cfg.GatewayURL, client), nil
	case config.BackendKubo:
		return NewKubo(cfg.KuboAPI, client, logger), nil
	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
}

func methodOrGet(method string) string {
	if method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(method)
}

// synthResponse 为不走 HTTP 的后端拼装一个等价的 *http.Response。
func synthResponse(status int, body io.ReadCloser, length int64, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	if body == nil {
		body = http.NoBody
	}
	if length >= 0 {
		header.Set("Content-Length", strconv.FormatInt(length, 10))
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          body,
		ContentLength: length,
	}
}
