package gateway

import (
	"strings"
	"testing"
)

func aboutContext() RewriteContext {
	return RewriteContext{
		CurrentDirectory: "/about/",
		OriginalHost:     "demo.example",
		Protocol:         "https",
		PinParam:         "orbVersion",
	}
}

func TestCurrentDirectory(t *testing.T) {
	cases := map[string]string{
		"":                "",
		"/":               "",
		"/about":          "/about/",
		"/about/":         "/about/",
		"/a/b/c":          "/a/b/c/",
		"/blog/post.html": "/blog/",
		"/style.css":      "",
		"/v1.2/notes":     "/v1.2/notes/",
		"docs/guide":      "/docs/guide/",
	}
	for in, want := range cases {
		if got := CurrentDirectory(in); got != want {
			t.Fatalf("CurrentDirectory(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRewriteHTMLInjectsBaseAndAnchorsRelativeLinks(t *testing.T) {
	doc := `<html><head><title>x</title></head><body><img src="logo.png"><a href="/abs">a</a><a href="https://x.com/y">b</a><a href="#top">c</a><a href="//cdn.example/z.js">d</a><img src="data:image/png;base64,AA=="><a href="mailto:team@demo.example">m</a></body></html>`
	want := `<html><head><base href="https://demo.example/about/"><title>x</title></head><body><img src="/about/logo.png"><a href="/abs">a</a><a href="https://x.com/y">b</a><a href="#top">c</a><a href="//cdn.example/z.js">d</a><img src="data:image/png;base64,AA=="><a href="mailto:team@demo.example">m</a></body></html>`

	got := string(NewRewriter().RewriteHTML([]byte(doc), aboutContext()))
	if got != want {
		t.Fatalf("unexpected rewrite:\n got: %s\nwant: %s", got, want)
	}
}

func TestRewriteHTMLIsIdempotent(t *testing.T) {
	doc := `<!DOCTYPE html><html><head><link rel="stylesheet" href="site.css"><style>.h{background:url(img/h.png)}</style></head>` +
		`<body style="background:url('bg.png')"><script src="app.js"></script><a href="page.html?x=1#frag">p</a></body></html>`

	pinned := aboutContext()
	pinned.PinnedVersion = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"

	rw := NewRewriter()
	for name, rc := range map[string]RewriteContext{"plain": aboutContext(), "pinned": pinned} {
		once := rw.RewriteHTML([]byte(doc), rc)
		twice := rw.RewriteHTML(once, rc)
		if string(once) != string(twice) {
			t.Fatalf("%s: rewrite is not idempotent:\n once: %s\ntwice: %s", name, once, twice)
		}
		if strings.Count(string(twice), "<base ") != 1 {
			t.Fatalf("%s: expected exactly one base tag, got %s", name, twice)
		}
	}
}

func TestRewriteHTMLPinnedVersion(t *testing.T) {
	rc := aboutContext()
	rc.PinnedVersion = "QmPin"
	doc := `<head></head><img src="a.png"><a href="/b.html?x=1#top">b</a><a href="c.html?orbVersion=old">c</a><a href="https://other.example/">o</a>`
	want := `<head><base href="https://demo.example/about/"></head><img src="/about/a.png?orbVersion=QmPin"><a href="/b.html?x=1&orbVersion=QmPin#top">b</a><a href="/about/c.html?orbVersion=old">c</a><a href="https://other.example/">o</a>`

	if got := string(NewRewriter().RewriteHTML([]byte(doc), rc)); got != want {
		t.Fatalf("unexpected rewrite:\n got: %s\nwant: %s", got, want)
	}
}

func TestRewriteHTMLBasePlacement(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "after doctype without head",
			doc:  `<!DOCTYPE html><p><img src="a.png"></p>`,
			want: `<!DOCTYPE html><base href="https://demo.example/about/"><p><img src="/about/a.png"></p>`,
		},
		{
			name: "prepended to fragment",
			doc:  `<p>hi</p>`,
			want: `<base href="https://demo.example/about/"><p>hi</p>`,
		},
		{
			name: "existing base kept",
			doc:  `<head><base href="/x/"><link href="s.css"></head>`,
			want: `<head><base href="/x/"><link href="/about/s.css"></head>`,
		},
		{
			name: "head with attributes",
			doc:  `<HEAD lang="en"><TITLE>t</TITLE></HEAD>`,
			want: `<HEAD lang="en"><base href="https://demo.example/about/"><TITLE>t</TITLE></HEAD>`,
		},
	}
	for _, tc := range cases {
		if got := string(NewRewriter().RewriteHTML([]byte(tc.doc), aboutContext())); got != tc.want {
			t.Fatalf("%s:\n got: %s\nwant: %s", tc.name, got, tc.want)
		}
	}
}

func TestRewriteHTMLPreservesMarkup(t *testing.T) {
	doc := `<head></head><a title="a>b" href='x.html' data-x=1>t</a><IMG SRC=pic.png alt=""><!-- <img src="c.png"> --><input disabled>`
	want := `<head><base href="https://demo.example/about/"></head><a title="a>b" href='/about/x.html' data-x=1>t</a><IMG SRC=/about/pic.png alt=""><!-- <img src="c.png"> --><input disabled>`

	if got := string(NewRewriter().RewriteHTML([]byte(doc), aboutContext())); got != want {
		t.Fatalf("unexpected rewrite:\n got: %s\nwant: %s", got, want)
	}
}

func TestRewriteHTMLAtRootLeavesRelativeLinks(t *testing.T) {
	rc := aboutContext()
	rc.CurrentDirectory = ""
	doc := `<head></head><img src="logo.png">`
	want := `<head><base href="https://demo.example/"></head><img src="logo.png">`
	if got := string(NewRewriter().RewriteHTML([]byte(doc), rc)); got != want {
		t.Fatalf("unexpected rewrite:\n got: %s\nwant: %s", got, want)
	}
}

func TestRewriteHTMLEscapesBaseURL(t *testing.T) {
	rc := aboutContext()
	rc.OriginalHost = `demo.example"><script>`
	got := string(NewRewriter().RewriteHTML([]byte(`<head></head>`), rc))
	if strings.Contains(got, "<script>") {
		t.Fatalf("base url must be escaped, got %s", got)
	}
}

func TestRewriteCSS(t *testing.T) {
	rc := aboutContext()
	rc.CurrentDirectory = "/css/"
	doc := `body{background:url(img/bg.png)} .a{background:url("data:image/png;base64,AA")} .b{background:url( '/root.png' )} .c{src:url("fonts/f.woff2")}`
	want := `body{background:url(/css/img/bg.png)} .a{background:url("data:image/png;base64,AA")} .b{background:url( '/root.png' )} .c{src:url("/css/fonts/f.woff2")}`

	got := NewRewriter().RewriteCSS([]byte(doc), rc)
	if string(got) != want {
		t.Fatalf("unexpected rewrite:\n got: %s\nwant: %s", got, want)
	}
	if again := NewRewriter().RewriteCSS(got, rc); string(again) != want {
		t.Fatalf("css rewrite is not idempotent: %s", again)
	}
}

func TestAppendQueryParam(t *testing.T) {
	cases := []struct{ in, want string }{
		{"a.css", "a.css?v=Q"},
		{"a.css?x=1", "a.css?x=1&v=Q"},
		{"a.css?x=1#top", "a.css?x=1&v=Q#top"},
		{"a.css#top", "a.css?v=Q#top"},
		{"a.css?", "a.css?v=Q"},
		{"a.css?v=old", "a.css?v=old"},
		{"a.css?x=1&v", "a.css?x=1&v"},
	}
	for _, tc := range cases {
		if got := appendQueryParam(tc.in, "v", "Q"); got != tc.want {
			t.Fatalf("appendQueryParam(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRewriteEscapesCurrentDirectory(t *testing.T) {
	rc := aboutContext()
	rc.CurrentDirectory = `/a"b c/`

	got := string(NewRewriter().RewriteHTML([]byte(`<head></head><img src="x.png">`), rc))
	want := `<head><base href="https://demo.example/a%22b%20c/"></head><img src="/a%22b%20c/x.png">`
	if got != want {
		t.Fatalf("directory must be percent-encoded:\n got: %s\nwant: %s", got, want)
	}

	css := string(NewRewriter().RewriteCSS([]byte(`a{background:url('bg.png')}`), RewriteContext{CurrentDirectory: "/it's/"}))
	if css != `a{background:url('/it%27s/bg.png')}` {
		t.Fatalf("unexpected css rewrite %s", css)
	}
}
