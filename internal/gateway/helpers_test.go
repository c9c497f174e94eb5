package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/orbgate/orbgate/internal/backend"
)

// memoryObject 是内存后端中的一个对象。
type memoryObject struct {
	body        string
	contentType string
	unknownSize bool
}

// memoryBackend 在内存中模拟内容寻址后端，并记录每次调用。
type memoryBackend struct {
	mu          sync.Mutex
	objects     map[string]map[string]memoryObject
	ignoreRange bool
	failRange   bool
	failKeys    map[string]bool
	panicKey    string
	calls       []string
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{
		objects:  map[string]map[string]memoryObject{},
		failKeys: map[string]bool{},
	}
}

func (m *memoryBackend) put(cid, key, body, contentType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects[cid] == nil {
		m.objects[cid] = map[string]memoryObject{}
	}
	m.objects[cid][key] = memoryObject{body: body, contentType: contentType}
}

func (m *memoryBackend) putObject(cid, key string, obj memoryObject) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects[cid] == nil {
		m.objects[cid] = map[string]memoryObject{}
	}
	m.objects[cid][key] = obj
}

func (m *memoryBackend) BaseURL(cid string) string {
	return "mem://" + cid
}

func (m *memoryBackend) Fetch(_ context.Context, cid, key string, opts backend.FetchOptions) (*http.Response, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	m.mu.Lock()
	m.calls = append(m.calls, method+" "+key+rangeSuffix(opts.Range))
	obj, ok := m.objects[cid][key]
	fail := m.failKeys[key]
	m.mu.Unlock()

	if key == m.panicKey && m.panicKey != "" {
		panic("backend exploded")
	}
	if fail {
		return nil, errors.New("connection reset")
	}
	if !ok {
		return textResponse(http.StatusNotFound, "not found", "text/plain", false), nil
	}

	if method == http.MethodHead {
		resp := textResponse(http.StatusOK, "", obj.contentType, obj.unknownSize)
		if !obj.unknownSize {
			resp.ContentLength = int64(len(obj.body))
			resp.Header.Set("Content-Length", strconv.Itoa(len(obj.body)))
		}
		return resp, nil
	}

	if opts.Range != "" && !m.ignoreRange {
		if m.failRange {
			return nil, errors.New("range fetch interrupted")
		}
		var start, end int
		if _, err := fmt.Sscanf(opts.Range, "bytes=%d-%d", &start, &end); err == nil && end < len(obj.body) {
			resp := textResponse(http.StatusPartialContent, obj.body[start:end+1], obj.contentType, false)
			resp.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(obj.body)))
			return resp, nil
		}
	}
	return textResponse(http.StatusOK, obj.body, obj.contentType, obj.unknownSize), nil
}

func (m *memoryBackend) ContainsCID(_ context.Context, cid string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[cid]
	return ok, nil
}

func (m *memoryBackend) recorded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func rangeSuffix(r string) string {
	if r == "" {
		return ""
	}
	return " " + r
}

func textResponse(status int, body, contentType string, unknownSize bool) *http.Response {
	header := http.Header{}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	length := int64(len(body))
	if unknownSize {
		length = -1
	} else {
		header.Set("Content-Length", strconv.Itoa(len(body)))
	}
	return &http.Response{
		StatusCode:    status,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: length,
	}
}
