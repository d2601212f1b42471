// Package gateway is the transport entry point: the WebSocket upgrade path
// at /ws/<user_id> plus the small REST surface (health, presence, publish).
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/yamadatarousan/slack-clone/src/auth"
	"github.com/yamadatarousan/slack-clone/src/directory"
	"github.com/yamadatarousan/slack-clone/src/registry"
	"github.com/yamadatarousan/slack-clone/src/router"
	"github.com/yamadatarousan/slack-clone/src/service"
	"github.com/yamadatarousan/slack-clone/src/session"
)

var upgrader = websocket.FastHTTPUpgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*fasthttp.RequestCtx) bool { return true },
}

// Gateway binds the realtime core to the network.
type Gateway struct {
	registry   *registry.Registry
	router     *router.Router
	service    *service.Service
	directory  directory.UserDirectory
	verifier   *auth.TokenVerifier
	sessionCfg session.Config
	logger     zerolog.Logger
}

// New creates a gateway over the given core components.
func New(reg *registry.Registry, rt *router.Router, svc *service.Service, dir directory.UserDirectory, verifier *auth.TokenVerifier, sessionCfg session.Config, logger zerolog.Logger) *Gateway {
	return &Gateway{
		registry:   reg,
		router:     rt,
		service:    svc,
		directory:  dir,
		verifier:   verifier,
		sessionCfg: sessionCfg,
		logger:     logger.With().Str("component", "gateway").Logger(),
	}
}

// App builds the Fiber app serving the REST surface.
func (g *Gateway) App() *fiber.App {
	app := fiber.New()

	app.Get("/", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Slack Clone Realtime Gateway",
			"status":  "running",
		})
	})

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	app.Get("/presence", func(c fiber.Ctx) error {
		online := g.service.Presence()
		return c.JSON(fiber.Map{
			"online": online,
			"count":  len(online),
		})
	})

	app.Post("/send-message", g.handleSendMessage)

	return app
}

type sendMessageRequest struct {
	UserID    int64  `json:"user_id"`
	ChannelID int64  `json:"channel_id"`
	Content   string `json:"content"`
}

// handleSendMessage is the publish path for REST collaborators: the
// message-persistence endpoint calls it after writing a row.
func (g *Gateway) handleSendMessage(c fiber.Ctx) error {
	var req sendMessageRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "content is required"})
	}

	d, err := g.service.PublishMessage(context.Background(), req.UserID, req.ChannelID, req.Content)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		// A directory outage is not an unknown sender.
		g.logger.Error().Err(err).Int64("user_id", req.UserID).Msg("publish failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "directory unavailable"})
	}
	return c.JSON(fiber.Map{
		"status":    "message sent",
		"delivered": d.Delivered,
		"attempted": d.Attempted,
	})
}

// Handler returns the raw fasthttp handler: WebSocket upgrades on /ws/,
// everything else through Fiber. Fiber v3 does not expose
// *fasthttp.RequestCtx, so the upgrade path is dispatched at this level.
func (g *Gateway) Handler() fasthttp.RequestHandler {
	app := g.App().Handler()
	return func(ctx *fasthttp.RequestCtx) {
		if strings.HasPrefix(string(ctx.Path()), "/ws/") {
			g.handleUpgrade(ctx)
			return
		}
		app(ctx)
	}
}

func (g *Gateway) handleUpgrade(ctx *fasthttp.RequestCtx) {
	if !strings.EqualFold(string(ctx.Request.Header.Peek("Upgrade")), "websocket") {
		ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
		ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
		return
	}

	userID, err := strconv.ParseInt(strings.TrimPrefix(string(ctx.Path()), "/ws/"), 10, 64)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		ctx.SetBodyString(`{"error":"invalid_user_id"}`)
		return
	}

	token := string(ctx.QueryArgs().Peek("token"))
	if err := g.verifier.Verify(token, userID); err != nil {
		g.logger.Warn().Err(err).Int64("user_id", userID).Msg("handshake rejected")
		ctx.SetStatusCode(fasthttp.StatusUnauthorized)
		ctx.SetBodyString(`{"error":"unauthorized"}`)
		return
	}

	display := g.resolveDisplay(ctx, userID)

	err = upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		transport := &wsConn{conn: conn}
		c := registry.NewConnection(userID, display.Username, display.DisplayName, transport)
		sess := session.New(c, transport, g.registry, g.router, g.sessionCfg, g.logger)
		sess.Run(context.Background())
	})
	if err != nil {
		g.logger.Error().Err(err).Int64("user_id", userID).Msg("websocket upgrade failed")
	}
}

// resolveDisplay asks the directory for the user's identity. A miss falls
// back to a synthetic username so a gateway running without the persistence
// collaborator still accepts connections.
func (g *Gateway) resolveDisplay(ctx context.Context, userID int64) directory.UserDisplay {
	display, err := g.directory.LookupUserDisplay(ctx, userID)
	if err != nil {
		g.logger.Warn().Err(err).Int64("user_id", userID).Msg("display lookup failed, using fallback")
		return directory.UserDisplay{Username: fmt.Sprintf("user-%d", userID)}
	}
	return display
}
