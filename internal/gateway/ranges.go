package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/orbgate/orbgate/internal/backend"
)

var (
	errMalformedRange     = errors.New("malformed range header")
	errUnsatisfiableRange = errors.New("range not satisfiable")
)

// RangeRequest 描述一次媒体区间请求。
type RangeRequest struct {
	CID        string
	Candidates Candidates
	Header     string
}

// RangeResult 是区间响应的结果。Status 为 404/416 时 Response 为空；
// 200 表示回退为整文件，206 表示成功返回区间。调用方负责关闭 Response.Body。
type RangeResult struct {
	Status   int
	Key      string
	Size     int64
	Start    int64
	End      int64
	Response *http.Response
}

// ContentRange 返回 206/416 对应的 Content-Range 头。
func (r *RangeResult) ContentRange() string {
	switch r.Status {
	case http.StatusPartialContent:
		return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, r.Size)
	case http.StatusRequestedRangeNotSatisfiable:
		return fmt.Sprintf("bytes */%d", r.Size)
	}
	return ""
}

// ContentType 返回上游声明的类型，供扩展名表未覆盖时使用。
func (r *RangeResult) ContentType() string {
	if r.Response == nil {
		return ""
	}
	return r.Response.Header.Get("Content-Type")
}

// RangeResponder 先 HEAD 探测对象大小，再按校验后的区间重新抓取。
type RangeResponder struct {
	backend backend.Backend
	logger  *logrus.Logger
}

// NewRangeResponder 创建区间响应器。
func NewRangeResponder(b backend.Backend, logger *logrus.Logger) *RangeResponder {
	return &RangeResponder{backend: b, logger: logger}
}

// Serve 执行 探测 → 校验 → 区间抓取；上游不支持区间或中途失败时回退为整文件。
func (r *RangeResponder) Serve(ctx context.Context, req RangeRequest) (*RangeResult, error) {
	key, size, found := r.probe(ctx, req.CID, req.Candidates)
	if !found {
		return &RangeResult{Status: http.StatusNotFound}, nil
	}
	if size < 0 {
		return r.full(ctx, req.CID, key, size)
	}

	start, end, err := parseByteRange(req.Header, size)
	switch {
	case errors.Is(err, errUnsatisfiableRange):
		return &RangeResult{Status: http.StatusRequestedRangeNotSatisfiable, Key: key, Size: size}, nil
	case err != nil:
		return r.full(ctx, req.CID, key, size)
	}

	resp, err := r.backend.Fetch(ctx, req.CID, key, backend.FetchOptions{
		Range: fmt.Sprintf("bytes=%d-%d", start, end),
	})
	if err != nil {
		r.logFallback(req.CID, key, 0, err)
		return r.full(ctx, req.CID, key, size)
	}
	switch resp.StatusCode {
	case http.StatusPartialContent:
		length := end - start + 1
		resp.Body = limitBody(resp.Body, length)
		resp.ContentLength = length
		return &RangeResult{
			Status:   http.StatusPartialContent,
			Key:      key,
			Size:     size,
			Start:    start,
			End:      end,
			Response: resp,
		}, nil
	case http.StatusOK:
		r.logFallback(req.CID, key, resp.StatusCode, nil)
		return &RangeResult{Status: http.StatusOK, Key: key, Size: size, Response: resp}, nil
	default:
		r.logFallback(req.CID, key, resp.StatusCode, nil)
		discard(resp)
		return r.full(ctx, req.CID, key, size)
	}
}

// probe 对候选依次发起 HEAD，返回首个存在的对象及其大小（未知时为 -1）。
func (r *RangeResponder) probe(ctx context.Context, cid string, keys Candidates) (string, int64, bool) {
	for _, key := range keys {
		resp, err := r.backend.Fetch(ctx, cid, key, backend.FetchOptions{Method: http.MethodHead})
		if err != nil {
			metricCandidateFetches.WithLabelValues("range_probe", "error").Inc()
			continue
		}
		discard(resp)
		if !isSuccess(resp.StatusCode) {
			metricCandidateFetches.WithLabelValues("range_probe", "miss").Inc()
			continue
		}
		metricCandidateFetches.WithLabelValues("range_probe", "hit").Inc()
		return key, responseSize(resp), true
	}
	return "", -1, false
}

func (r *RangeResponder) full(ctx context.Context, cid, key string, size int64) (*RangeResult, error) {
	resp, err := r.backend.Fetch(ctx, cid, key, backend.FetchOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	return &RangeResult{Status: resp.StatusCode, Key: key, Size: size, Response: resp}, nil
}

func (r *RangeResponder) logFallback(cid, key string, status int, err error) {
	if r.logger == nil {
		return
	}
	entry := r.logger.WithFields(logrus.Fields{
		"action":          "range_fetch",
		"cid":             cid,
		"key":             key,
		"upstream_status": status,
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Info("range_fallback_full")
}

func responseSize(resp *http.Response) int64 {
	if resp.ContentLength >= 0 {
		return resp.ContentLength
	}
	if raw := resp.Header.Get("Content-Length"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n >= 0 {
			return n
		}
	}
	return -1
}

// parseByteRange 解析单个 bytes 区间，支持 start-end、start- 与 -suffix 三种写法。
// 起止位置超过 size-1 或 start > end 时返回 errUnsatisfiableRange。
func parseByteRange(header string, size int64) (int64, int64, error) {
	rangeSet, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok || strings.Contains(rangeSet, ",") {
		return 0, 0, errMalformedRange
	}
	startRaw, endRaw, ok := strings.Cut(strings.TrimSpace(rangeSet), "-")
	if !ok {
		return 0, 0, errMalformedRange
	}
	startRaw, endRaw = strings.TrimSpace(startRaw), strings.TrimSpace(endRaw)

	if startRaw == "" {
		suffix, err := strconv.ParseInt(endRaw, 10, 64)
		if err != nil || suffix < 0 {
			return 0, 0, errMalformedRange
		}
		if suffix == 0 || size == 0 {
			return 0, 0, errUnsatisfiableRange
		}
		if suffix > size {
			suffix = size
		}
		return size - suffix, size - 1, nil
	}

	start, err := strconv.ParseInt(startRaw, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, errMalformedRange
	}
	end := size - 1
	if endRaw != "" {
		end, err = strconv.ParseInt(endRaw, 10, 64)
		if err != nil || end < 0 {
			return 0, 0, errMalformedRange
		}
	}
	if start > size-1 || end > size-1 || start > end {
		return 0, 0, errUnsatisfiableRange
	}
	return start, end, nil
}

type limitedBody struct {
	io.Reader
	io.Closer
}

func limitBody(body io.ReadCloser, n int64) io.ReadCloser {
	return limitedBody{Reader: io.LimitReader(body, n), Closer: body}
}
