// Package analytics 负责访问事件的异步上报。上报与请求生命周期完全解耦：
// 每个事件在独立 goroutine 中以自己的超时运行，失败只记录日志。
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "orbgate",
	Subsystem: "analytics",
	Name:      "events_total",
	Help:      "Analytics events dispatched, by result",
}, []string{"result"})

// Event 描述一次已完成的网关响应。
type Event struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id,omitempty"`
	Site      string    `json:"site"`
	Host      string    `json:"host"`
	Path      string    `json:"path"`
	Method    string    `json:"method"`
	Status    int       `json:"status"`
	CID       string    `json:"cid,omitempty"`
	Contract  string    `json:"contract,omitempty"`
	Org       string    `json:"org,omitempty"`
	Plan      string    `json:"plan,omitempty"`
	Pinned    bool      `json:"pinned,omitempty"`
	Referer   string    `json:"referer,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Tracker 把事件送往外部统计服务。
type Tracker interface {
	Track(ctx context.Context, ev Event) error
}

// NopTracker 在未配置上报地址时使用。
type NopTracker struct{}

func (NopTracker) Track(context.Context, Event) error { return nil }

// HTTPTracker 以 JSON POST 方式上报单个事件。
type HTTPTracker struct {
	endpoint string
	client   *http.Client
}

// NewTracker 根据上报地址选择实现；endpoint 为空时返回 NopTracker。
func NewTracker(endpoint string, client *http.Client) Tracker {
	if endpoint == "" {
		return NopTracker{}
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTracker{endpoint: endpoint, client: client}
}

func (t *HTTPTracker) Track(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("analytics endpoint returned %d", resp.StatusCode)
	}
	return nil
}
