package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/orbgate/orbgate/internal/backend"
)

// ResolveRequest 描述一次顺序抓取。NotFound 为自定义 404 页面的候选，可为空。
type ResolveRequest struct {
	CID        string
	Candidates Candidates
	NotFound   Candidates
	Method     string
}

// Resolution 是抓取结果。Status 是最终应返回的状态码：自定义 404 命中时为 404，
// 其余情况等于上游状态码。调用方负责关闭 Response.Body。
type Resolution struct {
	Key          string
	Response     *http.Response
	Status       int
	NotFoundPage bool
	RootFallback bool
}

// Fetcher 按优先级依次尝试候选 key，命中即返回。
type Fetcher struct {
	backend backend.Backend
	logger  *logrus.Logger
}

// NewFetcher 创建顺序抓取器。
func NewFetcher(b backend.Backend, logger *logrus.Logger) *Fetcher {
	return &Fetcher{backend: b, logger: logger}
}

// Resolve 依次执行：候选列表 → 自定义 404 页面 → CID 根对象。前两步的失败
// 都被静默丢弃；根对象无论状态如何都会返回，只有传输错误才返回 error。
func (f *Fetcher) Resolve(ctx context.Context, req ResolveRequest) (*Resolution, error) {
	if resp, key, ok := f.firstSuccess(ctx, "candidate", req.CID, req.Candidates, req.Method); ok {
		return &Resolution{Key: key, Response: resp, Status: resp.StatusCode}, nil
	}

	if resp, key, ok := f.firstSuccess(ctx, "not_found_page", req.CID, req.NotFound, req.Method); ok {
		return &Resolution{Key: key, Response: resp, Status: http.StatusNotFound, NotFoundPage: true}, nil
	}

	resp, err := f.backend.Fetch(ctx, req.CID, "", backend.FetchOptions{Method: req.Method})
	if err != nil {
		metricCandidateFetches.WithLabelValues("root", "error").Inc()
		return nil, fmt.Errorf("fetch root object of %s: %w", req.CID, err)
	}
	metricCandidateFetches.WithLabelValues("root", resultLabel(resp.StatusCode)).Inc()
	return &Resolution{Response: resp, Status: resp.StatusCode, RootFallback: true}, nil
}

func (f *Fetcher) firstSuccess(ctx context.Context, stage, cid string, keys Candidates, method string) (*http.Response, string, bool) {
	for _, key := range keys {
		resp, err := f.backend.Fetch(ctx, cid, key, backend.FetchOptions{Method: method})
		if err != nil {
			metricCandidateFetches.WithLabelValues(stage, "error").Inc()
			f.logMiss(stage, cid, key, 0, err)
			continue
		}
		if isSuccess(resp.StatusCode) {
			metricCandidateFetches.WithLabelValues(stage, "hit").Inc()
			return resp, key, true
		}
		metricCandidateFetches.WithLabelValues(stage, "miss").Inc()
		f.logMiss(stage, cid, key, resp.StatusCode, nil)
		discard(resp)
	}
	return nil, "", false
}

func (f *Fetcher) logMiss(stage, cid, key string, status int, err error) {
	if f.logger == nil {
		return
	}
	entry := f.logger.WithFields(logrus.Fields{
		"action":          "candidate_fetch",
		"stage":           stage,
		"cid":             cid,
		"key":             key,
		"upstream_status": status,
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Debug("candidate_miss")
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func resultLabel(status int) string {
	if isSuccess(status) {
		return "hit"
	}
	return "miss"
}

// discard 读尽并关闭响应体，使底层连接可以复用。
func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
