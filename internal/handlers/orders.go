package handlers

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	ctxmiddleware "github.com/guillemso1er/orbitcheck-sub004/pkg/context"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/models"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/utils"
)

// OrderEvaluator is implemented by *evaluation.Service.
type OrderEvaluator interface {
	EvaluateOrder(ctx context.Context, projectID string, req models.OrderRequest) (*models.OrderResponse, error)
}

type OrderHandler struct {
	evaluator OrderEvaluator
}

func NewOrderHandler(evaluator OrderEvaluator) *OrderHandler {
	return &OrderHandler{evaluator: evaluator}
}

func (h *OrderHandler) Register(g *echo.Group) {
	g.POST("/orders/evaluate", h.Evaluate)
}

// Evaluate scores an order. The order's audit event is recorded by the
// evaluator.
func (h *OrderHandler) Evaluate(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := utils.BindRequest[models.OrderRequest](c)
	if err != nil {
		return err
	}
	if req.TotalAmount.IsNegative() {
		return httperror.NewHTTPError(http.StatusBadRequest, "total_amount must not be negative")
	}

	resp, err := h.evaluator.EvaluateOrder(ctx, ctxmiddleware.GetProjectID(ctx), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}
