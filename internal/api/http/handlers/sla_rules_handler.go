package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/helpdesk-sla/sla-service/internal/api/dto"
	"github.com/helpdesk-sla/sla-service/internal/domain"
	"github.com/helpdesk-sla/sla-service/internal/service"
	apperrors "github.com/helpdesk-sla/sla-service/pkg/util/errorutil"
)

// SLARulesHandler serves SLA rule administration.
type SLARulesHandler struct {
	rules *service.SLARuleService
}

// NewSLARulesHandler constructs handler.
func NewSLARulesHandler(ruleService *service.SLARuleService) *SLARulesHandler {
	return &SLARulesHandler{rules: ruleService}
}

// List GET /api/v1/sla/rules.
func (h *SLARulesHandler) List(c *fiber.Ctx) error {
	rules, err := h.rules.List(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.SLARuleResponse, 0, len(rules))
	for i := range rules {
		items = append(items, ruleResponse(&rules[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /api/v1/sla/rules/:id.
func (h *SLARulesHandler) Get(c *fiber.Ctx) error {
	id, err := ruleID(c)
	if err != nil {
		return err
	}
	rule, err := h.rules.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ruleResponse(rule)})
}

// Create POST /api/v1/sla/rules.
func (h *SLARulesHandler) Create(c *fiber.Ctx) error {
	var req dto.SLARuleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	rule, err := h.rules.Create(c.UserContext(), ruleInput(req))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ruleResponse(rule)})
}

// Update PUT /api/v1/sla/rules/:id.
func (h *SLARulesHandler) Update(c *fiber.Ctx) error {
	id, err := ruleID(c)
	if err != nil {
		return err
	}
	var req dto.SLARuleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	rule, err := h.rules.Update(c.UserContext(), id, ruleInput(req))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ruleResponse(rule)})
}

// Delete DELETE /api/v1/sla/rules/:id.
func (h *SLARulesHandler) Delete(c *fiber.Ctx) error {
	id, err := ruleID(c)
	if err != nil {
		return err
	}
	if err := h.rules.Delete(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func ruleID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid rule id", map[string]any{"id": c.Params("id")})
	}
	return id, nil
}

// ruleInput defaults business_hours_only to true, like the rules table.
func ruleInput(req dto.SLARuleRequest) service.SLARuleInput {
	businessHours := true
	if req.BusinessHoursOnly != nil {
		businessHours = *req.BusinessHoursOnly
	}
	return service.SLARuleInput{
		Name:              req.Name,
		Description:       req.Description,
		DepartmentID:      req.DepartmentID,
		Priorities:        req.Priorities,
		CustomerTypes:     req.CustomerTypes,
		FirstResponseTime: req.FirstResponseTime,
		ResolutionTime:    req.ResolutionTime,
		BusinessHoursOnly: businessHours,
		CalendarName:      req.CalendarName,
		IsActive:          req.IsActive,
		PauseConditions:   req.PauseConditions,
		EscalationLevels:  req.EscalationLevels,
	}
}

func ruleResponse(rule *domain.SLARule) dto.SLARuleResponse {
	return dto.SLARuleResponse{
		ID:                rule.ID,
		Name:              rule.Name,
		Description:       rule.Description,
		DepartmentID:      rule.DepartmentID,
		Priorities:        nonNil(rule.Priorities),
		CustomerTypes:     nonNil(rule.CustomerTypes),
		FirstResponseTime: rule.FirstResponseTime,
		ResolutionTime:    rule.ResolutionTime,
		BusinessHoursOnly: rule.BusinessHoursOnly,
		CalendarName:      rule.CalendarName,
		IsActive:          rule.IsActive,
		PauseConditions:   nonNil(rule.PauseConditions),
		EscalationLevels:  nonNil(rule.EscalationLevels),
		Version:           rule.Version,
		CreatedAt:         rule.CreatedAt,
		UpdatedAt:         rule.UpdatedAt,
	}
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
