package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"prism-board/domain"
)

const (
	metricsKey  = "board.metrics"
	identityKey = "board.identity"
)

// GzipRequestMiddleware decompresses gzip-encoded request bodies so handlers can
// work with plain JSON payloads. Requests with invalid gzip payloads are
// rejected with a 400 response.
func GzipRequestMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !hasGzipEncoding(req.Header.Get(echo.HeaderContentEncoding)) {
				return next(c)
			}

			body := req.Body
			gr, err := gzip.NewReader(body)
			if err != nil {
				_ = body.Close()
				return c.String(http.StatusBadRequest, "invalid gzip body")
			}

			req.Body = &gzipReadCloser{Reader: gr, body: body}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)

			return next(c)
		}
	}
}

func hasGzipEncoding(header string) bool {
	if header == "" {
		return false
	}
	for _, enc := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}

type gzipReadCloser struct {
	*gzip.Reader
	body io.Closer
}

func (g *gzipReadCloser) Close() error {
	var err error
	if g.Reader != nil {
		err = g.Reader.Close()
	}
	if g.body != nil {
		if cerr := g.body.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// observe starts request metrics and reports them once the handler returns.
func observe(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			m, ctx := newRequestMetrics(req.Context(), logger, req.Method, c.Path())
			c.SetRequest(req.WithContext(ctx))
			c.Set(metricsKey, m)

			err := next(c)
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if !c.Response().Committed {
					status = http.StatusInternalServerError
				}
			}
			m.Log(status, err)
			return err
		}
	}
}

func metricsFrom(c echo.Context) *requestMetrics {
	if m, ok := c.Get(metricsKey).(*requestMetrics); ok {
		return m
	}
	return &requestMetrics{start: time.Now()}
}

// requireIdentity authenticates the caller. Requests without an organization
// claim are refused because every board belongs to one.
func requireIdentity(auth Authenticator, allowQueryToken bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			const op = "auth"
			m := metricsFrom(c)
			start := time.Now()
			id, err := auth.IdentityFromAuthHeader(authorizationFrom(c.Request(), allowQueryToken))
			m.ObserveAuth(time.Since(start))
			if err != nil {
				return respondError(c, "auth", &domain.Error{Kind: domain.KindUnauthenticated, Op: op, Msg: err.Error()})
			}
			if id.OrgID == "" {
				return respondError(c, "auth", domain.E(domain.KindUnauthorized, op, "organization required"))
			}
			c.Set(identityKey, id)
			return next(c)
		}
	}
}

func identityFrom(c echo.Context) Identity {
	id, _ := c.Get(identityKey).(Identity)
	return id
}
