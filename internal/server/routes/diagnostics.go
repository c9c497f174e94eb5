// Package routes 注册 /-/ 前缀下的运维诊断接口，这些路径不参与站点解析。
package routes

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orbgate/orbgate/internal/registry"
)

// RegisterDiagnostics 暴露健康检查、Prometheus 指标与站点查询接口。
// 必须在 server.NewApp 之后调用，站点路由会把 /-/ 请求交给这里。
func RegisterDiagnostics(app *fiber.App, reg registry.Registry, version string) {
	if app == nil {
		return
	}

	app.Get("/-/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "version": version})
	})

	app.Get("/-/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	if reg == nil {
		return
	}
	app.Get("/-/sites/:key", func(c fiber.Ctx) error {
		key := strings.TrimSpace(c.Params("key"))
		if key == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "site_key_required"})
		}
		site, err := registry.Describe(c.Context(), reg, key)
		if errors.Is(err, registry.ErrSiteNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "site_not_found"})
		}
		if err != nil {
			return err
		}
		return c.JSON(encodeSite(site))
	})
}

type sitePayload struct {
	Key       string        `json:"key"`
	CID       string        `json:"cid"`
	Contract  string        `json:"contract,omitempty"`
	Org       string        `json:"org,omitempty"`
	Plan      string        `json:"plan,omitempty"`
	Redirects []rulePayload `json:"redirects"`
	NotFound  *notFoundPage `json:"not_found_page,omitempty"`
}

type rulePayload struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Status      int    `json:"status"`
	Force       bool   `json:"force,omitempty"`
}

type notFoundPage struct {
	Destination string `json:"destination"`
}

func encodeSite(site *registry.Site) sitePayload {
	payload := sitePayload{
		Key:       site.Key,
		CID:       site.CID,
		Contract:  site.Contract,
		Org:       site.Org,
		Plan:      site.Plan,
		Redirects: make([]rulePayload, 0, len(site.Redirects)),
	}
	for _, rule := range site.Redirects {
		if rule.Source == registry.NotFoundSource {
			if payload.NotFound == nil {
				payload.NotFound = &notFoundPage{Destination: rule.Destination}
			}
			continue
		}
		status := rule.Status
		if status == 0 {
			status = fiber.StatusMovedPermanently
		}
		payload.Redirects = append(payload.Redirects, rulePayload{
			Source:      rule.Source,
			Destination: rule.Destination,
			Status:      status,
			Force:       rule.Force,
		})
	}
	return payload
}
