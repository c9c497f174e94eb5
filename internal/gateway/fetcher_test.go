package gateway

import (
	"context"
	"io"
	"net/http"
	"reflect"
	"testing"
)

func TestFetcherShortCircuitsOnFirstSuccess(t *testing.T) {
	b := newMemoryBackend()
	b.put("Q1", "about.html", "<h1>about</h1>", "text/html")
	b.put("Q1", "about/index.html", "<h1>index</h1>", "text/html")

	f := NewFetcher(b, nil)
	res, err := f.Resolve(context.Background(), ResolveRequest{
		CID:        "Q1",
		Candidates: Candidates{"missing/index.html", "about/index.html", "about.html"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer res.Response.Body.Close()

	if res.Key != "about/index.html" || res.Status != http.StatusOK || res.RootFallback || res.NotFoundPage {
		t.Fatalf("unexpected resolution %+v", res)
	}
	want := []string{"GET missing/index.html", "GET about/index.html"}
	if got := b.recorded(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected calls %v, got %v", want, got)
	}
}

func TestFetcherSkipsTransportErrors(t *testing.T) {
	b := newMemoryBackend()
	b.put("Q1", "b.css", "body{}", "text/css")
	b.failKeys["a.css"] = true

	res, err := NewFetcher(b, nil).Resolve(context.Background(), ResolveRequest{
		CID:        "Q1",
		Candidates: Candidates{"a.css", "b.css"},
	})
	if err != nil {
		t.Fatalf("transport error on a candidate must not fail resolution: %v", err)
	}
	res.Response.Body.Close()
	if res.Key != "b.css" {
		t.Fatalf("expected b.css, got %s", res.Key)
	}
}

func TestFetcherServesCustomNotFoundWith404(t *testing.T) {
	b := newMemoryBackend()
	b.put("Q1", "404.html", "<p>gone</p>", "text/html")
	b.put("Q1", "", "root", "text/html")

	res, err := NewFetcher(b, nil).Resolve(context.Background(), ResolveRequest{
		CID:        "Q1",
		Candidates: Candidates{"nope/index.html", "nope.html"},
		NotFound:   Candidates{"404.html"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, _ := io.ReadAll(res.Response.Body)
	res.Response.Body.Close()

	if res.Status != http.StatusNotFound || !res.NotFoundPage {
		t.Fatalf("custom 404 page must be served with 404, got %+v", res)
	}
	if res.Response.StatusCode != http.StatusOK {
		t.Fatalf("upstream status should be preserved on the response, got %d", res.Response.StatusCode)
	}
	if string(body) != "<p>gone</p>" {
		t.Fatalf("unexpected body %q", body)
	}
	for _, call := range b.recorded() {
		if call == "GET " {
			t.Fatalf("root object must not be fetched when the 404 page resolves")
		}
	}
}

func TestFetcherFallsBackToRootObject(t *testing.T) {
	b := newMemoryBackend()
	b.put("Q1", "", "<html>root</html>", "text/html")

	res, err := NewFetcher(b, nil).Resolve(context.Background(), ResolveRequest{
		CID:        "Q1",
		Candidates: Candidates{"x.png"},
		NotFound:   Candidates{"404.html"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res.Response.Body.Close()
	if !res.RootFallback || res.Status != http.StatusOK || res.Key != "" {
		t.Fatalf("expected root fallback, got %+v", res)
	}
	want := []string{"GET x.png", "GET 404.html", "GET "}
	if got := b.recorded(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected calls %v, got %v", want, got)
	}
}

func TestFetcherReturnsRootStatusEvenOnFailure(t *testing.T) {
	b := newMemoryBackend()
	res, err := NewFetcher(b, nil).Resolve(context.Background(), ResolveRequest{
		CID:        "Q1",
		Candidates: Candidates{"x.png"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res.Response.Body.Close()
	if !res.RootFallback || res.Status != http.StatusNotFound {
		t.Fatalf("root status should be surfaced as-is, got %+v", res)
	}
}

func TestFetcherRootTransportErrorIsReturned(t *testing.T) {
	b := newMemoryBackend()
	b.failKeys[""] = true
	if _, err := NewFetcher(b, nil).Resolve(context.Background(), ResolveRequest{CID: "Q1", Candidates: Candidates{"a.js"}}); err == nil {
		t.Fatalf("expected error when root fetch fails")
	}
}
