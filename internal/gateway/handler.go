package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/orbgate/orbgate/internal/analytics"
	"github.com/orbgate/orbgate/internal/backend"
	"github.com/orbgate/orbgate/internal/logging"
	"github.com/orbgate/orbgate/internal/registry"
	"github.com/orbgate/orbgate/internal/server"
)

const (
	headerContentID = "orb-cid"
	headerContract  = "orb-contract"
)

// Options 汇总 Handler 的依赖。Tables/Rewriter 为空时使用默认实现，
// Analytics 为空时不上报。
type Options struct {
	Registry           registry.Registry
	Backend            backend.Backend
	Analytics          *analytics.Dispatcher
	Tables             *Tables
	Rewriter           Rewriter
	Logger             *logrus.Logger
	PinParam           string
	OriginalHostHeader string
}

// Handler 把跳转、候选、抓取/区间、改写组合成完整的请求处理流程，
// 实现 server.SiteHandler。
type Handler struct {
	registry   registry.Registry
	backend    backend.Backend
	analytics  *analytics.Dispatcher
	tables     *Tables
	rewriter   Rewriter
	logger     *logrus.Logger
	pinParam   string
	hostHeader string

	redirects *RedirectEngine
	fetcher   *Fetcher
	ranges    *RangeResponder
}

// requestMeta 是单个请求在各阶段之间传递的只读信息。字符串均已从 fasthttp
// 缓冲区复制，可安全地交给后台任务。
type requestMeta struct {
	route     *server.SiteRoute
	requestID string
	method    string
	path      string
	query     string
	ext       string
	host      string
	scheme    string
	referer   string
	userAgent string
	cid       string
	contract  string
	pinned    bool
	started   time.Time
}

// NewHandler 校验依赖并构建处理器。
func NewHandler(opts Options) (*Handler, error) {
	if opts.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if opts.Backend == nil {
		return nil, errors.New("backend is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Tables == nil {
		opts.Tables = DefaultTables()
	}
	if opts.Rewriter == nil {
		opts.Rewriter = NewRewriter()
	}
	if opts.PinParam == "" {
		opts.PinParam = "orbVersion"
	}
	return &Handler{
		registry:   opts.Registry,
		backend:    opts.Backend,
		analytics:  opts.Analytics,
		tables:     opts.Tables,
		rewriter:   opts.Rewriter,
		logger:     opts.Logger,
		pinParam:   opts.PinParam,
		hostHeader: opts.OriginalHostHeader,
		redirects:  NewRedirectEngine(opts.Logger),
		fetcher:    NewFetcher(opts.Backend, opts.Logger),
		ranges:     NewRangeResponder(opts.Backend, opts.Logger),
	}, nil
}

// Handle 执行完整的网关流程。任何阶段的错误或 panic 都转换为纯文本 500，
// 正文为错误字符串。
func (h *Handler) Handle(c fiber.Ctx, route *server.SiteRoute) (err error) {
	meta := h.buildMeta(c, route)
	defer func() {
		if r := recover(); r != nil {
			err = h.fail(c, meta, fmt.Errorf("panic: %v", r))
		}
	}()

	outcome, err := h.serve(c, meta)
	if err != nil {
		return h.fail(c, meta, err)
	}
	h.finish(c, meta, outcome)
	return nil
}

func (h *Handler) serve(c fiber.Ctx, meta *requestMeta) (string, error) {
	if h.tables.IsBlocked(meta.ext) {
		c.Set(fiber.HeaderCacheControl, cacheControlBlocked)
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return outcomeBlocked, c.Status(fiber.StatusNotFound).SendString("Not Found")
	}

	ctx := requestContext(c)
	current, ok, err := h.registry.ContentID(ctx, meta.route.SiteKey)
	if err != nil {
		return "", fmt.Errorf("lookup content identifier for site %s: %w", meta.route.SiteKey, err)
	}
	if !ok {
		return "", fmt.Errorf("site %s: %w", meta.route.SiteKey, registry.ErrSiteNotFound)
	}

	contract, err := h.registry.Contract(ctx, meta.route.SiteKey)
	if err != nil {
		h.logWarn(meta, "contract_lookup_failed", err)
	}
	meta.contract = contract
	meta.cid, meta.pinned = h.resolveContentID(ctx, meta, current, strings.Clone(c.Query(h.pinParam)))

	rules, err := h.registry.Redirects(ctx, meta.route.SiteKey)
	if err != nil {
		h.logWarn(meta, "redirect_rules_unavailable", err)
		rules = nil
	}

	if redirect, ok := h.redirects.Match(rules, RedirectRequest{
		Path:   meta.path,
		Query:  meta.query,
		Scheme: meta.scheme,
		Host:   meta.host,
	}); ok {
		h.setMetaHeaders(c, meta)
		c.Set(fiber.HeaderCacheControl, cacheControlRedirect)
		c.Set(fiber.HeaderLocation, redirect.Location)
		return outcomeRedirect, c.SendStatus(redirect.Status)
	}

	candidates := BuildCandidates(CandidateInput{Path: meta.path, Referer: meta.referer, Host: meta.host})

	if rangeHeader := strings.TrimSpace(c.Get(fiber.HeaderRange)); rangeHeader != "" && h.tables.IsMedia(meta.ext) {
		result, err := h.ranges.Serve(ctx, RangeRequest{CID: meta.cid, Candidates: candidates, Header: rangeHeader})
		if err != nil {
			return "", err
		}
		return h.writeRange(c, meta, result)
	}

	var notFound Candidates
	if dest, ok := NotFoundPage(rules); ok && !isAbsoluteRef(dest) {
		notFound = BuildCandidates(CandidateInput{Path: dest})
	}
	res, err := h.fetcher.Resolve(ctx, ResolveRequest{
		CID:        meta.cid,
		Candidates: candidates,
		NotFound:   notFound,
		Method:     meta.method,
	})
	if err != nil {
		return "", err
	}
	return h.writeResolution(c, meta, res)
}

// resolveContentID 校验调用方指定的版本；不合法或不存在时静默回退到当前版本。
func (h *Handler) resolveContentID(ctx context.Context, meta *requestMeta, current, requested string) (string, bool) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return current, false
	}
	if requested == current {
		metricPinValidations.WithLabelValues("current").Inc()
		return current, true
	}
	if !backend.ValidCID(requested) {
		metricPinValidations.WithLabelValues("invalid").Inc()
		return current, false
	}
	exists, err := h.backend.ContainsCID(ctx, requested)
	if err != nil {
		h.logWarn(meta, "pin_validation_failed", err)
	}
	if err != nil || !exists {
		metricPinValidations.WithLabelValues("rejected").Inc()
		return current, false
	}
	metricPinValidations.WithLabelValues("accepted").Inc()
	return requested, true
}

func (h *Handler) writeResolution(c fiber.Ctx, meta *requestMeta, res *Resolution) (string, error) {
	resp := res.Response
	contentType := h.tables.resolveContentType(res.Key, resp.Header.Get("Content-Type"))
	h.setContentHeaders(c, meta, contentType)
	if h.tables.IsMedia(extension(res.Key)) {
		c.Set(fiber.HeaderAcceptRanges, "bytes")
	}

	outcome := outcomeContent
	switch {
	case res.NotFoundPage || res.Status == http.StatusNotFound:
		outcome = outcomeNotFound
	case res.RootFallback:
		outcome = outcomeRootFallback
	}
	c.Status(res.Status)

	mediaType := mediaTypeOf(contentType)
	rewritable := mediaType == "text/html" || mediaType == "text/css"
	if meta.method == http.MethodHead {
		// 改写后的正文长度与上游不同，HEAD 不声明长度。
		switch {
		case rewritable:
			c.Response().Header.SetContentLength(-1)
		case resp.ContentLength >= 0:
			c.Response().Header.SetContentLength(int(resp.ContentLength))
		}
		discard(resp)
		return outcome, nil
	}

	if rewritable {
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return "", fmt.Errorf("read %s: %w", displayKey(res.Key), err)
		}
		rc := h.rewriteContext(meta, res)
		if mediaType == "text/html" {
			body = h.rewriter.RewriteHTML(body, rc)
		} else {
			body = h.rewriter.RewriteCSS(body, rc)
		}
		return outcome, c.Send(body)
	}

	return outcome, sendStream(c, resp.Body, resp.ContentLength)
}

func (h *Handler) writeRange(c fiber.Ctx, meta *requestMeta, result *RangeResult) (string, error) {
	contentType := h.tables.resolveContentType(result.Key, result.ContentType())
	h.setContentHeaders(c, meta, contentType)

	switch result.Status {
	case http.StatusNotFound:
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return outcomeNotFound, c.Status(fiber.StatusNotFound).SendString("Not Found")
	case http.StatusRequestedRangeNotSatisfiable:
		c.Set(fiber.HeaderContentRange, result.ContentRange())
		return outcomeUnsatisfied, c.SendStatus(fiber.StatusRequestedRangeNotSatisfiable)
	}

	c.Set(fiber.HeaderAcceptRanges, "bytes")
	resp := result.Response
	outcome := outcomeContent
	if result.Status == http.StatusPartialContent {
		c.Set(fiber.HeaderContentRange, result.ContentRange())
		outcome = outcomePartial
	}
	c.Status(result.Status)
	if meta.method == http.MethodHead {
		discard(resp)
		return outcome, nil
	}
	return outcome, sendStream(c, resp.Body, resp.ContentLength)
}

// rewriteContext 以请求路径计算目录上下文；自定义 404 与根对象回退的文档
// 按其对象 key 所在目录改写，避免相对链接被错误地挂到请求目录下。
func (h *Handler) rewriteContext(meta *requestMeta, res *Resolution) RewriteContext {
	dir := CurrentDirectory(meta.path)
	if res.NotFoundPage || res.RootFallback {
		dir = CurrentDirectory("/" + res.Key)
	}
	rc := RewriteContext{
		CurrentDirectory: dir,
		OriginalHost:     meta.host,
		Protocol:         meta.scheme,
		PinParam:         h.pinParam,
	}
	if meta.pinned {
		rc.PinnedVersion = meta.cid
	}
	return rc
}

func (h *Handler) setContentHeaders(c fiber.Ctx, meta *requestMeta, contentType string) {
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
	c.Set(fiber.HeaderCacheControl, cacheControlContent)
	h.setMetaHeaders(c, meta)
}

func (h *Handler) setMetaHeaders(c fiber.Ctx, meta *requestMeta) {
	c.Set(headerContentID, meta.cid)
	c.Set(headerContract, meta.contract)
	if meta.requestID != "" {
		c.Set("X-Request-ID", meta.requestID)
	}
}

// fail 输出纯文本 500，正文为错误字符串。
func (h *Handler) fail(c fiber.Ctx, meta *requestMeta, err error) error {
	c.Response().Reset()
	if meta.requestID != "" {
		c.Set("X-Request-ID", meta.requestID)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	sendErr := c.Status(fiber.StatusInternalServerError).SendString(err.Error())
	h.finish(c, meta, outcomeError, err)
	return sendErr
}

// finish 记录日志与指标，并把统计事件交给后台分发器。
func (h *Handler) finish(c fiber.Ctx, meta *requestMeta, outcome string, errs ...error) {
	status := c.Response().StatusCode()
	elapsed := time.Since(meta.started)
	metricRequests.WithLabelValues(outcome).Inc()
	metricRequestDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())

	fields := logging.RequestFields(meta.route.SiteKey, meta.host, meta.cid, meta.contract, meta.pinned)
	fields["action"] = "gateway"
	fields["path"] = meta.path
	fields["method"] = meta.method
	fields["status"] = status
	fields["outcome"] = outcome
	fields["elapsed_ms"] = elapsed.Milliseconds()
	if meta.requestID != "" {
		fields["request_id"] = meta.requestID
	}
	if len(errs) > 0 && errs[0] != nil {
		h.logger.WithFields(fields).WithError(errs[0]).Error("gateway_failed")
	} else {
		h.logger.WithFields(fields).Info("gateway_complete")
	}

	h.dispatchEvent(meta, status)
}

func (h *Handler) dispatchEvent(meta *requestMeta, status int) {
	if h.analytics == nil {
		return
	}
	ev := analytics.Event{
		ID:        uuid.NewString(),
		RequestID: meta.requestID,
		Site:      meta.route.SiteKey,
		Host:      meta.host,
		Path:      meta.path,
		Method:    meta.method,
		Status:    status,
		CID:       meta.cid,
		Contract:  meta.contract,
		Pinned:    meta.pinned,
		Referer:   meta.referer,
		UserAgent: meta.userAgent,
		Timestamp: meta.started.UTC(),
	}
	reg := h.registry
	h.analytics.Dispatch(ev, func(ctx context.Context, ev *analytics.Event) error {
		org, err := reg.Org(ctx, ev.Site)
		if err != nil || org == "" {
			return err
		}
		ev.Org = org
		ev.Plan, err = reg.Plan(ctx, org)
		return err
	})
}

func (h *Handler) logWarn(meta *requestMeta, msg string, err error) {
	fields := logging.RequestFields(meta.route.SiteKey, meta.host, meta.cid, meta.contract, meta.pinned)
	fields["action"] = "gateway"
	fields["request_id"] = meta.requestID
	h.logger.WithFields(fields).WithError(err).Warn(msg)
}

func (h *Handler) buildMeta(c fiber.Ctx, route *server.SiteRoute) *requestMeta {
	reqPath := string(c.Request().URI().Path())
	if reqPath == "" {
		reqPath = "/"
	}
	return &requestMeta{
		route:     route,
		requestID: server.RequestID(c),
		method:    strings.Clone(c.Method()),
		path:      reqPath,
		query:     string(c.Request().URI().QueryString()),
		ext:       extension(reqPath),
		host:      h.originalHost(c),
		scheme:    requestScheme(c),
		referer:   strings.Clone(c.Get(fiber.HeaderReferer)),
		userAgent: strings.Clone(c.Get(fiber.HeaderUserAgent)),
		started:   time.Now(),
	}
}

// originalHost 优先使用代理传入的原始主机头，其次 X-Forwarded-Host，最后 Host。
func (h *Handler) originalHost(c fiber.Ctx) string {
	for _, name := range []string{h.hostHeader, fiber.HeaderXForwardedHost} {
		if name == "" {
			continue
		}
		if value := strings.TrimSpace(c.Get(name)); value != "" {
			first, _, _ := strings.Cut(value, ",")
			return strings.Clone(strings.TrimSpace(first))
		}
	}
	if raw := c.Request().Header.Peek(fiber.HeaderHost); len(raw) > 0 {
		return string(raw)
	}
	return strings.Clone(c.Hostname())
}

func requestScheme(c fiber.Ctx) string {
	switch proto := strings.ToLower(strings.TrimSpace(c.Get(fiber.HeaderXForwardedProto))); proto {
	case "http", "https":
		return proto
	}
	return strings.Clone(c.Scheme())
}

func requestContext(c fiber.Ctx) context.Context {
	ctx := c.Context()
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// sendStream 交给 fasthttp 流式输出，body 在写完后由 fasthttp 关闭。
func sendStream(c fiber.Ctx, body io.ReadCloser, length int64) error {
	if length >= 0 {
		return c.SendStream(body, int(length))
	}
	return c.SendStream(body)
}

func mediaTypeOf(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

func displayKey(key string) string {
	if key == "" {
		return "root object"
	}
	return key
}
