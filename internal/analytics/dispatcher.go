package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Enricher 在后台补全事件字段（例如组织与套餐），失败时事件仍会上报。
type Enricher func(ctx context.Context, ev *Event) error

// Dispatcher 以分离的 goroutine 执行上报，调用方永远不会被阻塞。
type Dispatcher struct {
	tracker Tracker
	timeout time.Duration
	logger  *logrus.Logger
	wg      sync.WaitGroup
}

// NewDispatcher 创建分发器；timeout 为每个事件独立的超时。
func NewDispatcher(tracker Tracker, timeout time.Duration, logger *logrus.Logger) *Dispatcher {
	if tracker == nil {
		tracker = NopTracker{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{tracker: tracker, timeout: timeout, logger: logger}
}

// Dispatch 异步上报事件。enrich 可以为空。
func (d *Dispatcher) Dispatch(ev Event, enrich Enricher) {
	if d == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.run(ev, enrich); err != nil {
			metricEvents.WithLabelValues("failed").Inc()
			d.logFailure(ev, err)
			return
		}
		metricEvents.WithLabelValues("sent").Inc()
	}()
}

func (d *Dispatcher) run(ev Event, enrich Enricher) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if enrich != nil {
		if enrichErr := enrich(ctx, &ev); enrichErr != nil {
			d.logFailure(ev, enrichErr)
		}
	}
	return d.tracker.Track(ctx, ev)
}

// Wait 等待所有在途事件结束，用于优雅退出与测试。
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

func (d *Dispatcher) logFailure(ev Event, err error) {
	if d.logger == nil {
		return
	}
	d.logger.WithFields(logrus.Fields{
		"action":     "analytics",
		"site":       ev.Site,
		"event_id":   ev.ID,
		"request_id": ev.RequestID,
	}).WithError(err).Warn("analytics_dispatch_failed")
}
