package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"prism-board/domain"
)

const maxBodyBytes = 64 << 10

// sonicSerializer replaces echo's encoding/json serializer.
type sonicSerializer struct{}

func (sonicSerializer) Serialize(c echo.Context, i any, indent string) error {
	enc := sonic.ConfigStd.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (sonicSerializer) Deserialize(c echo.Context, i any) error {
	if err := sonic.ConfigStd.NewDecoder(c.Request().Body).Decode(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	return nil
}

// decodeBody reads a JSON request body, rejecting unknown fields and bodies
// over maxBodyBytes.
func decodeBody(c echo.Context, op string, v any) error {
	body := http.MaxBytesReader(c.Response(), c.Request().Body, maxBodyBytes)
	dec := sonic.ConfigStd.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &domain.Error{Kind: domain.KindInvalidInput, Op: op, Msg: "invalid request body", Err: err}
	}
	return nil
}

// respondError writes err as a plain-text body with the status of its kind.
// Internal details are logged through the request metrics, never returned.
func respondError(c echo.Context, stage string, err error) error {
	m := metricsFrom(c)
	m.SetErrorStage(stage)
	m.SetError(err)

	kind := domain.KindOf(err)
	msg := "internal error"
	if kind != domain.KindInternal {
		var derr *domain.Error
		if errors.As(err, &derr) {
			msg = derr.Message()
		} else {
			msg = err.Error()
		}
	}
	return c.String(kind.HTTPStatus(), msg)
}

// respond encodes v as JSON and records the encode time.
func respond(c echo.Context, v any) error {
	start := time.Now()
	err := c.JSON(http.StatusOK, v)
	metricsFrom(c).ObserveEncode(time.Since(start))
	return err
}

type successResponse struct {
	Success bool `json:"success"`
}

func requiredID(c echo.Context, op string) (string, error) {
	id := c.QueryParam("id")
	if id == "" {
		return "", domain.E(domain.KindInvalidInput, op, "id is required")
	}
	return id, nil
}
