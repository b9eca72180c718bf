package api

import (
	"bytes"
	"embed"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed static/index.html
var staticFS embed.FS

// MaxBodyMiddleware rejects request bodies larger than limit with 413,
// before the handler ever sees them. This is a distinct concern from
// WrapperCodec decoding: protection against oversized payloads happens at
// the transport boundary.
func MaxBodyMiddleware(limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			req := ctx.Request()
			if req.ContentLength > limit {
				return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
			}
			body, err := io.ReadAll(io.LimitReader(req.Body, limit+1))
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
			if int64(len(body)) > limit {
				return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
			}
			req.Body = io.NopCloser(bytes.NewReader(body))
			return next(ctx)
		}
	}
}

// NewServer builds the echo instance with every route and middleware
// wired, ready for server.Start.
func NewServer(c *Controller, metadataSizeLimit int64) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/", serveIndex)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/keys/:addr", c.GetKeys)
	e.PUT("/keys/:addr", c.PutKeys, MaxBodyMiddleware(metadataSizeLimit))
	e.GET("/peers", c.GetPeers)
	e.POST("/payments", c.PostPayments, MaxBodyMiddleware(metadataSizeLimit))

	return e
}

func serveIndex(ctx echo.Context) error {
	body, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return ctx.HTMLBlob(http.StatusOK, body)
}
