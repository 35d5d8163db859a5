package handlers

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	ctxmiddleware "github.com/guillemso1er/orbitcheck-sub004/pkg/context"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/models"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/utils"
)

// Deduper is implemented by *dedupe.Matcher.
type Deduper interface {
	DedupeCustomer(ctx context.Context, projectID string, input models.CustomerInput) (models.DedupeResult, error)
	DedupeAddress(ctx context.Context, projectID string, addr models.Address) (models.DedupeResult, error)
}

type DedupeHandler struct {
	deduper Deduper
	audit   auditor
}

func NewDedupeHandler(deduper Deduper, recorder AuditRecorder, logger ectologger.Logger) *DedupeHandler {
	return &DedupeHandler{
		deduper: deduper,
		audit:   auditor{recorder: recorder, logger: logger},
	}
}

func (h *DedupeHandler) Register(g *echo.Group) {
	g.POST("/dedupe/customer", h.Customer)
	g.POST("/dedupe/address", h.Address)
}

func (h *DedupeHandler) Customer(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := utils.BindRequest[models.CustomerInput](c)
	if err != nil {
		return err
	}

	result, err := h.deduper.DedupeCustomer(ctx, ctxmiddleware.GetProjectID(ctx), req)
	if err != nil {
		return err
	}

	h.record(ctx, "customer", result)
	return c.JSON(http.StatusOK, result)
}

func (h *DedupeHandler) Address(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := utils.BindRequest[models.Address](c)
	if err != nil {
		return err
	}

	result, err := h.deduper.DedupeAddress(ctx, ctxmiddleware.GetProjectID(ctx), req)
	if err != nil {
		return err
	}

	h.record(ctx, "address", result)
	return c.JSON(http.StatusOK, result)
}

func (h *DedupeHandler) record(ctx context.Context, kind string, result models.DedupeResult) {
	h.audit.record(ctx, models.AuditTypeDedupe, http.StatusOK, nil, map[string]any{
		"kind":             kind,
		"matches":          len(result.Matches),
		"suggested_action": result.SuggestedAction,
	})
}
