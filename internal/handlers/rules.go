package handlers

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	ctxmiddleware "github.com/guillemso1er/orbitcheck-sub004/pkg/context"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/models"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/rules"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/utils"
)

// RuleStore is implemented by *rule.Repository.
type RuleStore interface {
	Create(ctx context.Context, projectID string, req models.CreateRuleRequest) (*models.Rule, error)
	Get(ctx context.Context, projectID, id string) (*models.Rule, error)
	List(ctx context.Context, projectID string) ([]models.Rule, error)
	Update(ctx context.Context, projectID, id string, req models.UpdateRuleRequest) (*models.Rule, error)
	Delete(ctx context.Context, projectID, id string) error
}

// RuleTester is implemented by *evaluation.Service.
type RuleTester interface {
	TestRules(ctx context.Context, projectID string, req models.TestRulesRequest) (*models.TestRulesResponse, error)
}

type RuleHandler struct {
	store  RuleStore
	tester RuleTester
	audit  auditor
	logger ectologger.Logger
}

func NewRuleHandler(store RuleStore, tester RuleTester, recorder AuditRecorder, logger ectologger.Logger) *RuleHandler {
	return &RuleHandler{
		store:  store,
		tester: tester,
		audit:  auditor{recorder: recorder, logger: logger},
		logger: logger,
	}
}

func (h *RuleHandler) Register(g *echo.Group) {
	g.GET("/rules", h.List)
	g.POST("/rules", h.Create)
	g.POST("/rules/test", h.Test)
	g.GET("/rules/:id", h.Get)
	g.PUT("/rules/:id", h.Update)
	g.DELETE("/rules/:id", h.Delete)
}

func (h *RuleHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	list, err := h.store.List(ctx, ctxmiddleware.GetProjectID(ctx))
	if err != nil {
		return err
	}
	if list == nil {
		list = []models.Rule{}
	}
	return c.JSON(http.StatusOK, list)
}

func (h *RuleHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	rule, err := h.store.Get(ctx, ctxmiddleware.GetProjectID(ctx), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rule)
}

// Create stores a rule after checking that its condition parses.
func (h *RuleHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := utils.BindRequest[models.CreateRuleRequest](c)
	if err != nil {
		return err
	}
	if _, err := rules.Parse(req.Condition); err != nil {
		return err
	}

	rule, err := h.store.Create(ctx, ctxmiddleware.GetProjectID(ctx), req)
	if err != nil {
		return err
	}

	h.record(ctx, "create", rule.ID)
	return c.JSON(http.StatusCreated, rule)
}

func (h *RuleHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := utils.BindRequest[models.UpdateRuleRequest](c)
	if err != nil {
		return err
	}
	if len(req.Condition) > 0 {
		if _, err := rules.Parse(req.Condition); err != nil {
			return err
		}
	}

	rule, err := h.store.Update(ctx, ctxmiddleware.GetProjectID(ctx), c.Param("id"), req)
	if err != nil {
		return err
	}

	h.record(ctx, "update", rule.ID)
	return c.JSON(http.StatusOK, rule)
}

func (h *RuleHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	if err := h.store.Delete(ctx, ctxmiddleware.GetProjectID(ctx), id); err != nil {
		return err
	}

	h.record(ctx, "delete", id)
	return c.NoContent(http.StatusNoContent)
}

// Test is a dry run: nothing is stored and no audit event is recorded.
func (h *RuleHandler) Test(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := utils.BindRequest[models.TestRulesRequest](c)
	if err != nil {
		return err
	}

	resp, err := h.tester.TestRules(ctx, ctxmiddleware.GetProjectID(ctx), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *RuleHandler) record(ctx context.Context, op, id string) {
	h.audit.record(ctx, models.AuditTypeRule, http.StatusOK, nil, map[string]any{"op": op, "rule_id": id})
}
