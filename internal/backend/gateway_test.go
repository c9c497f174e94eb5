package backend

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCID = "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"

func TestValidCID(t *testing.T) {
	assert.True(t, ValidCID(testCID))
	assert.True(t, ValidCID("QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"))
	assert.False(t, ValidCID(""))
	assert.False(t, ValidCID("not-a-cid"))
	assert.False(t, ValidCID("../../etc/passwd"))
}

func TestGatewayFetchBuildsObjectURL(t *testing.T) {
	var gotPath, gotRange, gotMethod string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotRange = r.Header.Get("Range")
		gotMethod = r.Method
		_, _ = w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	gw := NewGateway(upstream.URL+"/", upstream.Client())
	assert.Equal(t, upstream.URL+"/ipfs/"+testCID, gw.BaseURL(testCID))

	resp, err := gw.Fetch(context.Background(), testCID, "docs/my file.html", FetchOptions{Range: "bytes=0-1"})
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, "ok", string(body))
	assert.Equal(t, "/ipfs/"+testCID+"/docs/my%20file.html", gotPath)
	assert.Equal(t, "bytes=0-1", gotRange)
	assert.Equal(t, http.MethodGet, gotMethod)
}

func TestGatewayContainsCID(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
		if r.URL.Path == "/ipfs/"+testCID {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer upstream.Close()

	gw := NewGateway(upstream.URL, upstream.Client())
	ok, err := gw.ContainsCID(context.Background(), testCID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = gw.ContainsCID(context.Background(), "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = gw.ContainsCID(context.Background(), "garbage")
	require.NoError(t, err)
	assert.False(t, ok, "syntactically invalid cid must not reach upstream")
}
