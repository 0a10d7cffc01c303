// Package api exposes the prediction service over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"traffic-predictor/internal/service"
	"traffic-predictor/internal/traffic"
)

// ServiceInterface is the subset of service.Service the handlers need.
type ServiceInterface interface {
	Predict(ctx context.Context, req service.Request) (service.Response, error)
	Directions(ctx context.Context, origin, destination string) (service.DirectionsResult, error)
}

type Coords struct {
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
}

type PredictRequest struct {
	Origin            string  `json:"origin" validate:"required"`
	Destination       string  `json:"destination" validate:"required"`
	OriginCoords      *Coords `json:"originCoords" validate:"required"`
	DestinationCoords *Coords `json:"destinationCoords" validate:"required"`
}

type DirectionsRequest struct {
	Origin      string `json:"origin" validate:"required"`
	Destination string `json:"destination" validate:"required"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type Handler struct {
	svc      ServiceInterface
	validate *validator.Validate
	log      *slog.Logger
}

func NewHandler(svc ServiceInterface, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, validate: validator.New(), log: log}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/predict", h.Predict)
	g.POST("/directions", h.Directions)
	g.GET("/healthz", h.Health)
}

// Predict runs the model-backed variant.
func (h *Handler) Predict(c echo.Context) error {
	var req PredictRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Kind: "invalid_input"})
	}
	if err := h.validate.Struct(req); err != nil {
		return h.validationError(c, err, "origin, destination, and coordinates are required")
	}

	resp, err := h.svc.Predict(c.Request().Context(), service.Request{
		Origin:            req.Origin,
		Destination:       req.Destination,
		OriginCoords:      req.OriginCoords.coordinate(),
		DestinationCoords: req.DestinationCoords.coordinate(),
	})
	if err != nil {
		return h.fail(c, "predict", err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Directions echoes provider durations without the model.
func (h *Handler) Directions(c echo.Context) error {
	var req DirectionsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Kind: "invalid_input"})
	}
	if err := h.validate.Struct(req); err != nil {
		return h.validationError(c, err, "origin and destination are required")
	}

	out, err := h.svc.Directions(c.Request().Context(), req.Origin, req.Destination)
	if err != nil {
		return h.fail(c, "directions", err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (c *Coords) coordinate() *traffic.Coordinate {
	if c == nil || c.Latitude == nil || c.Longitude == nil {
		return nil
	}
	return &traffic.Coordinate{Lat: *c.Latitude, Lng: *c.Longitude}
}

// validationError reports a missing field as missing_input and anything else
// (out-of-range coordinates) as invalid_input.
func (h *Handler) validationError(c echo.Context, err error, missingMsg string) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Tag() == "required" {
				return c.JSON(http.StatusBadRequest, ErrorResponse{Error: missingMsg, Kind: traffic.Kind(traffic.ErrMissingInput)})
			}
		}
	}
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed: " + err.Error(), Kind: traffic.Kind(traffic.ErrInvalidInput)})
}

func (h *Handler) fail(c echo.Context, op string, err error) error {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "op", op, "status", status, "kind", traffic.Kind(err), "error", err)
	}
	return c.JSON(status, ErrorResponse{Error: err.Error(), Kind: traffic.Kind(err)})
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, traffic.ErrMissingInput), errors.Is(err, traffic.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, traffic.ErrNoRoute):
		return http.StatusNotFound
	case errors.Is(err, traffic.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
