package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/sirupsen/logrus"
)

// Kubo 通过节点 RPC（/api/v0）读取对象：cat 负责正文与区间，files/stat
// 负责 HEAD 探测，pin/ls 负责校验 CID 是否由本节点持有。
type Kubo struct {
	sh     *shell.Shell
	logger *logrus.Logger
}

type filesStat struct {
	Hash string `json:"Hash"`
	Size int64  `json:"Size"`
	Type string `json:"Type"`
}

// NewKubo 创建 kubo RPC 后端，client 为共享的上游 http.Client。
func NewKubo(apiURL string, client *http.Client, logger *logrus.Logger) *Kubo {
	if client == nil {
		client = http.DefaultClient
	}
	return &Kubo{
		sh:     shell.NewShellWithClient(apiURL, client),
		logger: logger,
	}
}

func (k *Kubo) BaseURL(cid string) string {
	return "/ipfs/" + cid
}

func (k *Kubo) objectPath(cid, key string) string {
	if key == "" {
		return k.BaseURL(cid)
	}
	return path.Join(k.BaseURL(cid), key)
}

func (k *Kubo) Fetch(ctx context.Context, cid, key string, opts FetchOptions) (*http.Response, error) {
	target := k.objectPath(cid, key)

	stat, found, err := k.stat(ctx, target)
	if err != nil {
		return nil, err
	}
	if !found || stat.Type == "directory" {
		return synthResponse(http.StatusNotFound, nil, 0, nil), nil
	}

	if methodOrGet(opts.Method) == http.MethodHead {
		return synthResponse(http.StatusOK, nil, stat.Size, nil), nil
	}

	req := k.sh.Request("cat", target)
	status := http.StatusOK
	length := stat.Size
	header := http.Header{}
	if start, end, ok := parseExplicitRange(opts.Range, stat.Size); ok {
		req = req.Option("offset", start).Option("length", end-start+1)
		status = http.StatusPartialContent
		length = end - start + 1
		header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, stat.Size))
	}

	res, err := req.Send(ctx)
	if err != nil {
		return nil, err
	}
	if res.Error != nil {
		res.Close()
		k.logMiss(target, res.Error)
		return synthResponse(http.StatusNotFound, nil, 0, nil), nil
	}
	return synthResponse(status, res.Output, length, header), nil
}

func (k *Kubo) ContainsCID(ctx context.Context, cid string) (bool, error) {
	if !ValidCID(cid) {
		return false, nil
	}
	var out struct {
		Keys map[string]struct {
			Type string `json:"Type"`
		} `json:"Keys"`
	}
	err := k.sh.Request("pin/ls", cid).Option("type", "recursive").Exec(ctx, &out)
	var rpcErr *shell.Error
	if errors.As(err, &rpcErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(out.Keys) > 0, nil
}

func (k *Kubo) stat(ctx context.Context, target string) (filesStat, bool, error) {
	var stat filesStat
	err := k.sh.Request("files/stat", target).Exec(ctx, &stat)
	var rpcErr *shell.Error
	if errors.As(err, &rpcErr) {
		k.logMiss(target, rpcErr)
		return stat, false, nil
	}
	if err != nil {
		return stat, false, err
	}
	return stat, true, nil
}

func (k *Kubo) logMiss(target string, err error) {
	if k.logger == nil {
		return
	}
	k.logger.WithFields(logrus.Fields{
		"action": "kubo_lookup",
		"path":   target,
	}).WithError(err).Debug("kubo_object_missing")
}

// parseExplicitRange 只接受网关自己发出的 "bytes=start-end" 形式，越界时视为无区间。
func parseExplicitRange(raw string, size int64) (int64, int64, bool) {
	if raw == "" || size <= 0 {
		return 0, 0, false
	}
	var start, end int64
	if _, err := fmt.Sscanf(strings.TrimSpace(raw), "bytes=%d-%d", &start, &end); err != nil {
		return 0, 0, false
	}
	if start < 0 || end < start || end >= size {
		return 0, 0, false
	}
	return start, end, true
}
