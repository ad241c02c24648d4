package gzip

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func echo(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func TestGzipMiddleware(t *testing.T) {
	h := GzipMiddleware(echo)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(`{"code":"HARSH21"}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	r := httptest.NewRequest(http.MethodPost, "/", &buf)
	r.Header.Set("Content-Encoding", "gzip")
	r.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	h(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	require.Equal(t, `{"code":"HARSH21"}`, string(body))
}

func TestGzipMiddlewarePlain(t *testing.T) {
	h := GzipMiddleware(echo)
	r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("plain"))
	w := httptest.NewRecorder()
	h(w, r)
	require.Empty(t, w.Header().Get("Content-Encoding"))
	require.Equal(t, "plain", w.Body.String())
}

func TestGzipMiddlewareBadBody(t *testing.T) {
	h := GzipMiddleware(echo)
	r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("not gzip"))
	r.Header.Set("Content-Encoding", "gzip")
	w := httptest.NewRecorder()
	h(w, r)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGzipMiddlewareNoContent(t *testing.T) {
	for _, code := range []int{http.StatusNoContent, http.StatusNotModified} {
		h := GzipMiddleware(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(code)
		})
		r := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		r.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()
		h(w, r)

		require.Equal(t, code, w.Code)
		require.Empty(t, w.Header().Get("Content-Encoding"))
		require.Zero(t, w.Body.Len())
	}
}
