// Package proxy implements the chatedge edge proxy: it receives chat
// requests from a browser client, forwards them to a completions-style LLM
// API, and re-streams the model's incremental output back to the browser as
// a normalized SSE stream, surviving upstream stalls, rejections and
// timeouts without ever breaking the client connection.
package proxy

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/coriolislabs/chatedge/pkg/chat"
	"github.com/coriolislabs/chatedge/pkg/config"
	"github.com/coriolislabs/chatedge/pkg/upstream"
)

// probeTimeout bounds the short non-streaming round trips behind /api/ping
// and /api/health.
const probeTimeout = 10 * time.Second

// fallbackPage is served for unknown paths when no static asset directory is
// configured, so hitting the proxy root in a browser is never a dead end.
const fallbackPage = `<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>chatedge</title></head>
<body>
<h1>chatedge</h1>
<p>The chat proxy is running. POST /api/chat to talk to it.</p>
</body>
</html>`

// Proxy is the edge proxy server. One instance serves all connections; each
// client request gets an independent, isolated pipeline and the only shared
// state is the read-only configuration.
type Proxy struct {
	settings *config.Settings
	client   *upstream.Client
	logger   *zap.Logger
	server   *fiber.App
}

// New assembles the proxy around the given settings.
func New(settings *config.Settings, logger *zap.Logger) *Proxy {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          jsonErrorHandler,
	})

	p := &Proxy{
		settings: settings,
		client:   upstream.NewClient(settings.APIBase, settings.APIKey, logger),
		logger:   logger,
		server:   app,
	}

	// Panics become structured JSON 500s, never an unstructured crash page.
	app.Use(recover.New())

	// Preflight and cross-origin calls from the browser client are always
	// answered permissively; the proxy carries no cookies or sessions.
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "*",
	}))

	api := app.Group("/api")
	api.Get("/chat", p.handleChatGet)
	api.Post("/chat", p.handleChatPost)
	api.Get("/ping", p.handlePing)
	api.Get("/debug", p.handleDebug)
	api.Get("/health", p.handleHealth)

	// Known routes reached with the wrong method get 405, anything else
	// under /api gets 404; both as JSON.
	for _, route := range []string{"/chat", "/ping", "/debug", "/health"} {
		api.All(route, func(c *fiber.Ctx) error {
			return fiber.NewError(fiber.StatusMethodNotAllowed, "method not allowed")
		})
	}
	api.All("/*", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "not found")
	})

	// Everything else is a static asset, or the embedded fallback page.
	if settings.StaticDir != "" {
		app.Static("/", settings.StaticDir)
	}
	app.Get("/*", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.SendString(fallbackPage)
	})

	return p
}

// Run starts the proxy on the configured listen address.
func (p *Proxy) Run() error {
	p.logger.Info("starting chatedge proxy",
		zap.String("listen", p.settings.ListenAddr),
		zap.String("upstream", p.settings.APIBase),
		zap.String("model", p.settings.Model),
	)
	return p.server.Listen(p.settings.ListenAddr)
}

// RunWithListener starts the proxy on the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting chatedge proxy",
		zap.String("listen", listener.Addr().String()),
		zap.String("upstream", p.settings.APIBase),
	)
	return p.server.Listener(listener)
}

// Close shuts the server down gracefully.
func (p *Proxy) Close() error {
	return p.server.Shutdown()
}

// handlePing proxies the provider's model-listing endpoint as a
// connectivity check, passing the upstream status through.
func (p *Proxy) handlePing(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	status, body, err := p.client.ListModels(ctx)
	if err != nil {
		p.logger.Warn("ping failed", zap.Error(err))
		return fiber.NewError(fiber.StatusBadGateway, "upstream unreachable: "+err.Error())
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(status).Send(body)
}

// handleDebug reports which configuration secrets are present and the
// effective model. Secret values themselves are never returned.
func (p *Proxy) handleDebug(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"api_key_present": p.settings.APIKey != "",
		"api_base":        p.settings.APIBase,
		"model":           p.settings.Model,
		"native_tools":    p.settings.NativeTools,
		"debug_events":    p.settings.DebugEvents,
	})
}

// handleHealth performs a short blocking round trip to confirm the provider
// actually answers completions, not just TCP.
func (p *Proxy) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	payload, err := upstream.Payload{
		Model:     p.settings.Model,
		Messages:  []chat.Message{{Role: chat.RoleUser, Content: "ping"}},
		MaxTokens: 8,
	}.Encode()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	text, err := p.client.Complete(ctx, payload)
	if err != nil {
		p.logger.Warn("health check failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"ok": false, "error": err.Error()})
	}

	return c.JSON(fiber.Map{"ok": true, "model": p.settings.Model, "sample": text})
}

// jsonErrorHandler renders every error, including recovered panics, as a
// structured JSON body with the matching status code.
func jsonErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{"message": err.Error(), "code": code},
	})
}
