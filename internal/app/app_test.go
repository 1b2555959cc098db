package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/you-humble/pdftoxml/internal/domain"
	"github.com/you-humble/pdftoxml/internal/testutil/pdftest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	cfg := fmt.Sprintf(`log_level: error
http:
  addr: "127.0.0.1:0"
storage:
  base_dir: %q
database:
  driver: sqlite
  dsn: %q
auth:
  jwt_secret: "0123456789abcdef0123"
  bcrypt_cost: 4
queue:
  driver: local
  workers: 2
`, filepath.Join(dir, "uploads"), filepath.Join(dir, "app.db"))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

type client struct {
	t     *testing.T
	base  string
	token string
}

func (c *client) do(method, path, contentType string, body []byte) *http.Response {
	c.t.Helper()

	req, err := http.NewRequest(method, c.base+path, bytes.NewReader(body))
	require.NoError(c.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	c.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestServiceEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	di := newDI(writeConfig(t))
	di.Logger()
	t.Cleanup(func() { di.Close(context.Background()) })

	require.NoError(t, di.Migrate(ctx))
	dispatcher := di.Dispatcher(ctx)
	require.NoError(t, dispatcher.Run(ctx))
	t.Cleanup(func() { _ = dispatcher.Stop(context.Background()) })

	srv := httptest.NewServer(di.Router(ctx))
	t.Cleanup(srv.Close)

	c := &client{t: t, base: srv.URL}

	resp := c.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	reg, err := json.Marshal(map[string]string{"name": "Ann", "email": "ann@example.com", "password": "secret1"})
	require.NoError(t, err)
	resp = c.do(http.MethodPost, "/api/auth/register", "application/json", reg)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	c.token = decode[domain.AuthResult](t, resp).Token
	require.NotEmpty(t, c.token)

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	fw, err := mw.CreateFormFile("file", "report.pdf")
	require.NoError(t, err)
	_, err = fw.Write(pdftest.Build("Hello", "World"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp = c.do(http.MethodPost, "/api/upload", mw.FormDataContentType(), form.Bytes())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	conv := decode[domain.Conversion](t, resp)
	assert.Equal(t, domain.StatusPending, conv.Status)

	var details domain.ConversionDetails
	require.Eventually(t, func() bool {
		resp := c.do(http.MethodGet, "/api/conversions/"+conv.ID, "", nil)
		if resp.StatusCode != http.StatusOK {
			return false
		}
		details = decode[domain.ConversionDetails](t, resp)
		return details.Conversion.Status.Terminal()
	}, 10*time.Second, 20*time.Millisecond)

	require.Equal(t, domain.StatusCompleted, details.Conversion.Status)
	assert.Contains(t, details.XMLContent, "<document>")
	assert.Contains(t, details.XMLContent, "Hello")

	resp = c.do(http.MethodGet, "/api/conversions/"+conv.ID+"/download", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "report.xml")

	resp = c.do(http.MethodDelete, "/api/conversions/"+conv.ID, "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = c.do(http.MethodGet, "/api/conversions/"+conv.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServiceRejectsAnonymous(t *testing.T) {
	ctx := context.Background()

	di := newDI(writeConfig(t))
	di.Logger()
	t.Cleanup(func() { di.Close(ctx) })
	require.NoError(t, di.Migrate(ctx))

	srv := httptest.NewServer(di.Router(ctx))
	t.Cleanup(srv.Close)

	c := &client{t: t, base: srv.URL}
	resp := c.do(http.MethodGet, "/api/conversions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
