package gateway

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/orbgate/orbgate/internal/registry"
)

func matchPath(t *testing.T, rules []registry.Rule, path string) (*Redirect, bool) {
	t.Helper()
	engine := NewRedirectEngine(nil)
	return engine.Match(rules, RedirectRequest{Path: path, Scheme: "https", Host: "demo.example"})
}

func TestRedirectExactMatchAndFallthrough(t *testing.T) {
	rules := []registry.Rule{{Source: "/old", Destination: "/new", Status: 302}}

	redirect, ok := matchPath(t, rules, "/old")
	if !ok {
		t.Fatalf("expected /old to redirect")
	}
	if redirect.Status != 302 || redirect.Location != "https://demo.example/new" {
		t.Fatalf("unexpected redirect %+v", redirect)
	}

	if _, ok := matchPath(t, rules, "/new"); ok {
		t.Fatalf("/new must fall through")
	}
	if _, ok := matchPath(t, rules, "/older"); ok {
		t.Fatalf("exact rule must not prefix match")
	}
}

func TestRedirectDefaultsTo301AndNormalizesSlashes(t *testing.T) {
	rules := []registry.Rule{{Source: "old", Destination: "new"}}
	redirect, ok := matchPath(t, rules, "/old/")
	if !ok {
		t.Fatalf("expected match after normalization")
	}
	if redirect.Status != 301 {
		t.Fatalf("expected default 301, got %d", redirect.Status)
	}
	if redirect.Location != "https://demo.example/new" {
		t.Fatalf("unexpected location %s", redirect.Location)
	}
}

func TestRedirectSelfLoopGuard(t *testing.T) {
	rules := []registry.Rule{
		{Source: "/same", Destination: "/same/", Status: 302},
		{Source: "/docs/", Destination: "/docs/intro", Force: true},
		{Source: "/catalog", Destination: "https://shop.example.com/catalog"},
	}
	if _, ok := matchPath(t, rules, "/same"); ok {
		t.Fatalf("rule pointing at itself must never redirect")
	}
	if _, ok := matchPath(t, rules, "/docs/intro"); ok {
		t.Fatalf("force rule must not redirect its own destination")
	}
	if redirect, ok := matchPath(t, rules, "/docs/other"); !ok || redirect.Location != "https://demo.example/docs/intro" {
		t.Fatalf("force rule should prefix match, got %+v", redirect)
	}
	if _, ok := matchPath(t, rules, "/catalog"); ok {
		t.Fatalf("absolute destination with same path must be guarded")
	}
}

func TestRedirectFirstMatchWins(t *testing.T) {
	rules := []registry.Rule{
		{Source: "/blog/intro", Destination: "/exact", Status: 302},
		{Source: "/blog/", Destination: "/prefix", Status: 301, Force: true},
	}
	redirect, ok := matchPath(t, rules, "/blog/intro")
	if !ok || redirect.Location != "https://demo.example/exact" || redirect.Status != 302 {
		t.Fatalf("earlier exact rule should win, got %+v", redirect)
	}
	redirect, ok = matchPath(t, rules, "/blog/other")
	if !ok || redirect.Location != "https://demo.example/prefix" {
		t.Fatalf("prefix rule should match, got %+v", redirect)
	}
}

func TestRedirectAbsoluteDestinationKeptVerbatim(t *testing.T) {
	dest := "https://shop.example.com/catalog?ref=site#top"
	rules := []registry.Rule{{Source: "/shop", Destination: dest, Status: 308}}
	redirect, ok := matchPath(t, rules, "/shop")
	if !ok || redirect.Location != dest || redirect.Status != 308 {
		t.Fatalf("unexpected redirect %+v", redirect)
	}
}

func TestRedirectSkipsReservedNotFoundRule(t *testing.T) {
	rules := []registry.Rule{{Source: registry.NotFoundSource, Destination: "/404.html"}}
	if _, ok := matchPath(t, rules, "/404"); ok {
		t.Fatalf("404 rule must not take part in matching")
	}
	if _, ok := matchPath(t, rules, "404"); ok {
		t.Fatalf("404 rule must not take part in matching")
	}
	dest, ok := NotFoundPage(rules)
	if !ok || dest != "/404.html" {
		t.Fatalf("expected reserved rule destination, got %q", dest)
	}
	if _, ok := NotFoundPage(nil); ok {
		t.Fatalf("no rules means no custom 404 page")
	}
}

func TestRedirectMalformedDestinationIsSkipped(t *testing.T) {
	logger, hook := test.NewNullLogger()
	engine := NewRedirectEngine(logger)
	rules := []registry.Rule{
		{Source: "/broken", Destination: "/bad%zz"},
		{Source: "/broken", Destination: "/fixed", Status: 302},
	}

	redirect, ok := engine.Match(rules, RedirectRequest{Path: "/broken", Scheme: "http", Host: "demo.example"})
	if !ok || redirect.Location != "http://demo.example/fixed" {
		t.Fatalf("evaluation should continue past malformed rule, got %+v", redirect)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel || entry.Message != "redirect_rule_skipped" {
		t.Fatalf("expected warning for malformed rule, got %+v", entry)
	}
}

func TestRedirectSelfLoopGuardComparesQuery(t *testing.T) {
	rules := []registry.Rule{{Source: "/a", Destination: "/a?lang=en", Status: 302}}
	engine := NewRedirectEngine(nil)

	redirect, ok := engine.Match(rules, RedirectRequest{Path: "/a", Scheme: "https", Host: "demo.example"})
	if !ok || redirect.Location != "https://demo.example/a?lang=en" {
		t.Fatalf("expected redirect to the same path with a query, got %+v", redirect)
	}

	if _, ok := engine.Match(rules, RedirectRequest{Path: "/a", Query: "lang=en", Scheme: "https", Host: "demo.example"}); ok {
		t.Fatalf("request already at the destination must not redirect again")
	}
}
