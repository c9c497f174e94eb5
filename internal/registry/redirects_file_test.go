package registry

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestParseRedirectsMapsSplatToForce(t *testing.T) {
	rules, err := LoadRedirectsFile(filepath.Join("testdata", "_redirects"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rules) != 4 {
		t.Fatalf("expected 4 rules (rewrite dropped), got %d: %+v", len(rules), rules)
	}
	if rules[0] != (Rule{Source: "/blog/", Destination: "/news", Status: 301, Force: true}) {
		t.Fatalf("unexpected splat rule: %+v", rules[0])
	}
	if rules[1] != (Rule{Source: "/about-us", Destination: "/about", Status: 302}) {
		t.Fatalf("unexpected exact rule: %+v", rules[1])
	}
	if rules[2].Destination != "https://shop.example.com/catalog?ref=site" {
		t.Fatalf("absolute destination should be preserved, got %s", rules[2].Destination)
	}
	if rules[3] != (Rule{Source: NotFoundSource, Destination: "/errors/404.html"}) {
		t.Fatalf("404 rule should become reserved rule, got %+v", rules[3])
	}
}

func TestParseRedirectsRejectsMissingDestination(t *testing.T) {
	if _, err := ParseRedirects(strings.NewReader("/only-source\n")); err == nil {
		t.Fatalf("expected parse error")
	}
}
