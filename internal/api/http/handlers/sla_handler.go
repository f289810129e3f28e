package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/helpdesk-sla/sla-service/internal/api/dto"
	"github.com/helpdesk-sla/sla-service/internal/auth"
	"github.com/helpdesk-sla/sla-service/internal/domain"
	"github.com/helpdesk-sla/sla-service/internal/events"
	"github.com/helpdesk-sla/sla-service/internal/service"
	apperrors "github.com/helpdesk-sla/sla-service/pkg/util/errorutil"
)

// SLAHandler serves SLA status, pause ledger and escalation endpoints.
type SLAHandler struct {
	sla *service.SLAService
}

// NewSLAHandler constructs handler.
func NewSLAHandler(slaService *service.SLAService) *SLAHandler {
	return &SLAHandler{sla: slaService}
}

// ListStatuses GET /api/v1/sla/status.
func (h *SLAHandler) ListStatuses(c *fiber.Ctx) error {
	statuses, err := h.sla.ListOpenStatuses(c.UserContext(), parseStatusFilter(c))
	if err != nil {
		return err
	}
	items := make([]dto.SLAStatusResponse, 0, len(statuses))
	for i := range statuses {
		items = append(items, statusResponse(&statuses[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetStatus GET /api/v1/sla/status/:ticketId.
func (h *SLAHandler) GetStatus(c *fiber.Ctx) error {
	status, err := h.sla.GetStatus(c.UserContext(), c.Params("ticketId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": statusResponse(status)})
}

// Pause POST /api/v1/sla/pause.
func (h *SLAHandler) Pause(c *fiber.Ctx) error {
	var req dto.PauseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.TicketID) == "" {
		return apperrors.NewValidationError("ticket_id required", nil)
	}
	if req.Reason == "" {
		return apperrors.NewValidationError("reason required", nil)
	}
	interval, err := h.sla.Pause(c.UserContext(), actorFrom(c), req.TicketID, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pauseResponse(interval)})
}

// Resume POST /api/v1/sla/resume.
func (h *SLAHandler) Resume(c *fiber.Ctx) error {
	var req dto.ResumeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.TicketID) == "" {
		return apperrors.NewValidationError("ticket_id required", nil)
	}
	interval, err := h.sla.Resume(c.UserContext(), actorFrom(c), req.TicketID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pauseResponse(interval)})
}

// ListPauses GET /api/v1/sla/pauses/:ticketId.
func (h *SLAHandler) ListPauses(c *fiber.Ctx) error {
	intervals, err := h.sla.ListPauses(c.UserContext(), c.Params("ticketId"))
	if err != nil {
		return err
	}
	items := make([]dto.PauseIntervalResponse, 0, len(intervals))
	for i := range intervals {
		items = append(items, pauseResponse(&intervals[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// ListEscalations GET /api/v1/sla/escalations/:ticketId.
func (h *SLAHandler) ListEscalations(c *fiber.Ctx) error {
	firings, err := h.sla.ListEscalations(c.UserContext(), c.Params("ticketId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": firingResponses(firings)})
}

// CheckEscalations POST /api/v1/sla/escalations/:ticketId/check.
func (h *SLAHandler) CheckEscalations(c *fiber.Ctx) error {
	firings, err := h.sla.CheckEscalations(c.UserContext(), c.Params("ticketId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": firingResponses(firings)})
}

// Sweep POST /api/v1/sla/escalations/sweep.
func (h *SLAHandler) Sweep(c *fiber.Ctx) error {
	result, err := h.sla.SweepEscalations(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SweepResponse{
		Tickets: result.Tickets,
		Fired:   result.Fired,
		Failed:  result.Failed,
	}})
}

// Report GET /api/v1/sla/report.
func (h *SLAHandler) Report(c *fiber.Ctx) error {
	report, err := h.sla.Report(c.UserContext(), parseStatusFilter(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SLAReportResponse{
		Total:                report.Total,
		WithinSLA:            report.Within,
		AtRisk:               report.AtRisk,
		Breached:             report.Breached,
		NotApplicable:        report.NotApplicable,
		AvgResponseMinutes:   report.AvgResponseMinutes,
		AvgResolutionMinutes: report.AvgResolutionMinutes,
		RespondedTickets:     report.RespondedTickets,
		ResolvedTickets:      report.ResolvedTickets,
		GeneratedAt:          report.GeneratedAt,
	}})
}

func parseStatusFilter(c *fiber.Ctx) service.StatusFilter {
	filter := service.StatusFilter{}
	if deptID := c.Query("department_id"); deptID != "" {
		filter.DepartmentID = &deptID
	}
	if priorities := c.Query("priority"); priorities != "" {
		for _, part := range strings.Split(priorities, ",") {
			filter.Priorities = append(filter.Priorities, domain.TicketPriority(strings.TrimSpace(part)))
		}
	}
	return filter
}

func actorFrom(c *fiber.Ctx) events.Actor {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return events.Actor{}
	}
	return events.Actor{Type: principal.SubjectType, SubjectID: principal.SubjectID}
}

func statusResponse(status *domain.SLAStatus) dto.SLAStatusResponse {
	return dto.SLAStatusResponse{
		TicketID:                status.TicketID,
		RuleID:                  status.RuleID,
		ResponseStatus:          status.ResponseStatus,
		ResolutionStatus:        status.ResolutionStatus,
		OverallStatus:           status.Overall,
		ResponseTimeRemaining:   status.ResponseTimeRemaining,
		ResolutionTimeRemaining: status.ResolutionTimeRemaining,
		ResponseElapsed:         status.ResponseElapsed,
		ResolutionElapsed:       status.ResolutionElapsed,
		IsPaused:                status.IsPaused,
		PauseReason:             status.ActivePauseReason,
		EvaluatedAt:             status.EvaluatedAt,
	}
}

func pauseResponse(interval *domain.PauseInterval) dto.PauseIntervalResponse {
	return dto.PauseIntervalResponse{
		ID:        interval.ID,
		TicketID:  interval.TicketID,
		Reason:    interval.Reason,
		StartedAt: interval.StartedAt,
		EndedAt:   interval.EndedAt,
	}
}

func firingResponses(firings []domain.EscalationFiring) []dto.EscalationFiringResponse {
	items := make([]dto.EscalationFiringResponse, 0, len(firings))
	for _, f := range firings {
		items = append(items, dto.EscalationFiringResponse{
			TicketID:           f.TicketID,
			RuleID:             f.RuleID,
			Level:              f.Level,
			Action:             f.Action,
			TargetUserID:       f.TargetUserID,
			TargetDepartmentID: f.TargetDepartmentID,
			FiredAt:            f.FiredAt,
		})
	}
	return items
}
