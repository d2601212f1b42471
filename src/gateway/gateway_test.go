package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/yamadatarousan/slack-clone/src/auth"
	"github.com/yamadatarousan/slack-clone/src/directory"
	"github.com/yamadatarousan/slack-clone/src/registry"
	"github.com/yamadatarousan/slack-clone/src/router"
	"github.com/yamadatarousan/slack-clone/src/service"
	"github.com/yamadatarousan/slack-clone/src/session"
)

type fixture struct {
	reg *registry.Registry
	dir *directory.Static
	gw  *Gateway
}

func newFixture(verifier *auth.TokenVerifier) *fixture {
	reg := registry.New(zerolog.Nop())
	dir := directory.NewStatic()
	rt := router.New(reg, router.BroadcastAll{Registry: reg}, zerolog.Nop())
	svc := service.New(reg, rt, dir, zerolog.Nop())
	gw := New(reg, rt, svc, dir, verifier, session.DefaultConfig(), zerolog.Nop())
	return &fixture{reg: reg, dir: dir, gw: gw}
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	return decoded
}

func TestRootBanner(t *testing.T) {
	fx := newFixture(nil)
	app := fx.gw.App()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	decoded := decodeBody(t, resp)
	assert.Equal(t, "running", decoded["status"])
}

func TestHealth(t *testing.T) {
	fx := newFixture(nil)
	app := fx.gw.App()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", decodeBody(t, resp)["status"])
}

func TestPresenceEndpoint(t *testing.T) {
	fx := newFixture(nil)

	transport := &noopConn{}
	c := registry.NewConnection(42, "alice", nil, transport)
	fx.reg.Register(c)
	t.Cleanup(c.Close)

	resp, err := fx.gw.App().Test(httptest.NewRequest(http.MethodGet, "/presence", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	decoded := decodeBody(t, resp)
	assert.Equal(t, float64(1), decoded["count"])
	online := decoded["online"].([]any)
	require.Len(t, online, 1)
	assert.Equal(t, float64(42), online[0].(map[string]any)["user_id"])
}

func TestSendMessagePublishes(t *testing.T) {
	fx := newFixture(nil)
	fx.dir.AddUser(42, "alice", nil)

	transport := &noopConn{}
	c := registry.NewConnection(43, "bob", nil, transport)
	fx.reg.Register(c)
	go c.WritePump(time.Second)
	t.Cleanup(c.Close)

	req := httptest.NewRequest(http.MethodPost, "/send-message",
		strings.NewReader(`{"user_id":42,"channel_id":7,"content":"hi"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := fx.gw.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	decoded := decodeBody(t, resp)
	assert.Equal(t, "message sent", decoded["status"])
	assert.Equal(t, float64(1), decoded["delivered"])
}

func TestSendMessageRequiresContent(t *testing.T) {
	fx := newFixture(nil)

	req := httptest.NewRequest(http.MethodPost, "/send-message",
		strings.NewReader(`{"user_id":42,"channel_id":7,"content":""}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := fx.gw.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// failingDirectory stands in for a directory whose backend is down.
type failingDirectory struct{}

func (failingDirectory) LookupUserDisplay(context.Context, int64) (directory.UserDisplay, error) {
	return directory.UserDisplay{}, errors.New("connection refused")
}

func TestSendMessageDirectoryOutageIsNot404(t *testing.T) {
	reg := registry.New(zerolog.Nop())
	rt := router.New(reg, router.BroadcastAll{Registry: reg}, zerolog.Nop())
	svc := service.New(reg, rt, failingDirectory{}, zerolog.Nop())
	gw := New(reg, rt, svc, failingDirectory{}, nil, session.DefaultConfig(), zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/send-message",
		strings.NewReader(`{"user_id":42,"channel_id":7,"content":"hi"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := gw.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestSendMessageUnknownSender(t *testing.T) {
	fx := newFixture(nil)

	req := httptest.NewRequest(http.MethodPost, "/send-message",
		strings.NewReader(`{"user_id":99,"channel_id":7,"content":"hi"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := fx.gw.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func wsRequest(t *testing.T, uri string, upgrade bool) *fasthttp.RequestCtx {
	t.Helper()
	var req fasthttp.Request
	req.SetRequestURI(uri)
	if upgrade {
		req.Header.Set("Upgrade", "websocket")
		req.Header.Set("Connection", "Upgrade")
	}
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	return ctx
}

func TestUpgradeRequiredWithoutHeader(t *testing.T) {
	fx := newFixture(nil)
	handler := fx.gw.Handler()

	ctx := wsRequest(t, "/ws/42", false)
	handler(ctx)
	assert.Equal(t, fasthttp.StatusUpgradeRequired, ctx.Response.StatusCode())
}

func TestUpgradeRejectsBadUserID(t *testing.T) {
	fx := newFixture(nil)
	handler := fx.gw.Handler()

	ctx := wsRequest(t, "/ws/alice", true)
	handler(ctx)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}

func TestUpgradeRejectsMissingToken(t *testing.T) {
	fx := newFixture(auth.NewTokenVerifier("secret"))
	handler := fx.gw.Handler()

	ctx := wsRequest(t, "/ws/42", true)
	handler(ctx)
	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
}

func TestNonWebSocketPathFallsThroughToApp(t *testing.T) {
	fx := newFixture(nil)
	resp, err := fx.gw.App().Test(httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// noopConn satisfies the transport interface for registry entries created
// outside a real upgrade.
type noopConn struct{}

func (noopConn) ReadJSON(any) error                 { select {} }
func (noopConn) WriteJSON(any) error                { return nil }
func (noopConn) Ping(time.Time) error               { return nil }
func (noopConn) SetReadDeadline(time.Time) error    { return nil }
func (noopConn) SetWriteDeadline(time.Time) error   { return nil }
func (noopConn) SetPongHandler(func(string) error)  {}
func (noopConn) Close() error                       { return nil }
