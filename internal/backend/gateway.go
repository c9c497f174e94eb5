package backend

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Gateway 通过路径式 HTTP 网关（<base>/ipfs/<cid>/<key>）读取对象。
type Gateway struct {
	base   string
	client *http.Client
}

// NewGateway 创建 HTTP 网关后端；client 为空时使用 http.DefaultClient。
func NewGateway(baseURL string, client *http.Client) *Gateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &Gateway{
		base:   strings.TrimRight(baseURL, "/"),
		client: client,
	}
}

func (g *Gateway) BaseURL(cid string) string {
	return g.base + "/ipfs/" + cid
}

func (g *Gateway) objectURL(cid, key string) string {
	target := g.BaseURL(cid)
	if key == "" {
		return target
	}
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return target + "/" + strings.Join(segments, "/")
}

func (g *Gateway) Fetch(ctx context.Context, cid, key string, opts FetchOptions) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, methodOrGet(opts.Method), g.objectURL(cid, key), http.NoBody)
	if err != nil {
		return nil, err
	}
	if opts.Range != "" {
		req.Header.Set("Range", opts.Range)
	}
	return g.client.Do(req)
}

// ContainsCID 对 CID 根对象发起 HEAD；网关对目录可能先 301 到带斜杠的地址，
// 因此所有 4xx 以下状态都视为存在。
func (g *Gateway) ContainsCID(ctx context.Context, cid string) (bool, error) {
	if !ValidCID(cid) {
		return false, nil
	}
	resp, err := g.Fetch(ctx, cid, "", FetchOptions{Method: http.MethodHead})
	if err != nil {
		return false, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode < http.StatusBadRequest, nil
}
