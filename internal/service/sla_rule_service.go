package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/helpdesk-sla/sla-service/internal/domain"
	"github.com/helpdesk-sla/sla-service/internal/repository"
	"github.com/helpdesk-sla/sla-service/internal/sla"
	apperrors "github.com/helpdesk-sla/sla-service/pkg/util/errorutil"
)

// SLARuleService manages SLA rule definitions. Edits apply prospectively: every
// evaluation reads the current rule, and Version tells callers which one they saw.
type SLARuleService struct {
	rules       repository.SLARuleRepository
	escalations repository.EscalationRepository
	departments repository.DepartmentRepository
	calendars   sla.Calendars
	logger      *zap.Logger
}

// RuleDependencies bundles repositories for the rule service.
type RuleDependencies struct {
	RuleRepo       repository.SLARuleRepository
	EscalationRepo repository.EscalationRepository
	DepartmentRepo repository.DepartmentRepository
	Calendars      sla.Calendars
	Logger         *zap.Logger
}

// SLARuleInput carries the editable fields of a rule.
type SLARuleInput struct {
	Name              string
	Description       string
	DepartmentID      *string
	Priorities        []domain.TicketPriority
	CustomerTypes     []string
	FirstResponseTime int
	ResolutionTime    int
	BusinessHoursOnly bool
	CalendarName      string
	IsActive          *bool
	PauseConditions   []domain.PauseReason
	EscalationLevels  []domain.EscalationLevel
}

// NewSLARuleService constructs the service.
func NewSLARuleService(deps RuleDependencies) *SLARuleService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SLARuleService{
		rules:       deps.RuleRepo,
		escalations: deps.EscalationRepo,
		departments: deps.DepartmentRepo,
		calendars:   deps.Calendars,
		logger:      logger,
	}
}

// List returns all rules, active or not.
func (s *SLARuleService) List(ctx context.Context) ([]domain.SLARule, error) {
	rules, err := s.rules.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return rules, nil
}

// Get returns one rule.
func (s *SLARuleService) Get(ctx context.Context, id int64) (*domain.SLARule, error) {
	rule, err := s.rules.GetByID(ctx, id)
	if err != nil {
		return nil, ruleError(err, id)
	}
	return rule, nil
}

// Create validates and stores a new rule. Rules start active unless told otherwise.
func (s *SLARuleService) Create(ctx context.Context, input SLARuleInput) (*domain.SLARule, error) {
	if err := s.validate(ctx, input); err != nil {
		return nil, err
	}
	rule := &domain.SLARule{IsActive: true}
	applyRuleInput(rule, input)
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("sla rule created", zap.Int64("rule_id", rule.ID), zap.String("name", rule.Name))
	return rule, nil
}

// Update replaces the editable fields and bumps the rule version.
func (s *SLARuleService) Update(ctx context.Context, id int64, input SLARuleInput) (*domain.SLARule, error) {
	rule, err := s.rules.GetByID(ctx, id)
	if err != nil {
		return nil, ruleError(err, id)
	}
	if err := s.validate(ctx, input); err != nil {
		return nil, err
	}
	applyRuleInput(rule, input)
	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, ruleError(err, id)
	}
	s.logger.Info("sla rule updated", zap.Int64("rule_id", rule.ID), zap.Int("version", rule.Version))
	return rule, nil
}

// Delete removes a rule that never escalated anything. Rules with firing history
// must be deactivated instead so the history keeps its meaning.
func (s *SLARuleService) Delete(ctx context.Context, id int64) error {
	if _, err := s.rules.GetByID(ctx, id); err != nil {
		return ruleError(err, id)
	}
	count, err := s.escalations.CountByRule(ctx, id)
	if err != nil {
		return apperrors.MapError(err)
	}
	if count > 0 {
		return apperrors.NewConflict("sla rule has escalation history; deactivate it instead", map[string]any{
			"rule_id": id,
			"firings": count,
		})
	}
	if err := s.rules.Delete(ctx, id); err != nil {
		return ruleError(err, id)
	}
	s.logger.Info("sla rule deleted", zap.Int64("rule_id", id))
	return nil
}

func (s *SLARuleService) validate(ctx context.Context, input SLARuleInput) error {
	details := map[string]any{}
	if strings.TrimSpace(input.Name) == "" {
		details["name"] = "required"
	}
	if input.FirstResponseTime <= 0 {
		details["first_response_time"] = "must be positive"
	}
	if input.ResolutionTime <= 0 {
		details["resolution_time"] = "must be positive"
	}
	for _, p := range input.Priorities {
		if !validPriority(p) {
			details["priorities"] = "unknown priority " + string(p)
		}
	}
	for _, r := range input.PauseConditions {
		if !r.Valid() {
			details["pause_conditions"] = "unknown pause reason " + string(r)
		}
	}
	if input.BusinessHoursOnly {
		if _, err := s.calendars.Lookup(input.CalendarName); err != nil {
			details["calendar_name"] = "calendar is not configured"
		}
	}
	if msg := validateLevels(input.EscalationLevels); msg != "" {
		details["escalation_levels"] = msg
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid sla rule", details)
	}

	if input.DepartmentID != nil {
		if _, err := s.departments.GetByID(ctx, *input.DepartmentID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewValidationError("invalid sla rule", map[string]any{"department_id": "department not found"})
			}
			return apperrors.MapError(err)
		}
	}
	return nil
}

func validateLevels(levels []domain.EscalationLevel) string {
	seen := make(map[int]struct{}, len(levels))
	for _, lvl := range levels {
		if lvl.Level <= 0 {
			return "level must be positive"
		}
		if _, dup := seen[lvl.Level]; dup {
			return "duplicate level"
		}
		seen[lvl.Level] = struct{}{}
		if lvl.TriggerTime < 0 {
			return "trigger_time must not be negative"
		}
		switch lvl.BoundClock() {
		case domain.SLAClockResponse, domain.SLAClockResolution:
		default:
			return "unknown clock " + string(lvl.Clock)
		}
		switch lvl.TriggerBasis() {
		case domain.EscalationBasisElapsed, domain.EscalationBasisBreach:
		default:
			return "unknown basis " + string(lvl.Basis)
		}
		switch lvl.Action {
		case domain.EscalationActionNotifyUser:
			if lvl.TargetUserID == nil || *lvl.TargetUserID == "" {
				return "notify_user requires target_user_id"
			}
		case domain.EscalationActionReassign:
			if (lvl.TargetUserID == nil || *lvl.TargetUserID == "") &&
				(lvl.TargetDepartmentID == nil || *lvl.TargetDepartmentID == "") {
				return "reassign requires a target user or department"
			}
		case domain.EscalationActionNotifyDepartment:
			if lvl.TargetDepartmentID == nil || *lvl.TargetDepartmentID == "" {
				return "notify_department requires target_department_id"
			}
		default:
			return "unknown action " + string(lvl.Action)
		}
	}
	return ""
}

func validPriority(p domain.TicketPriority) bool {
	switch p {
	case domain.TicketPriorityLow, domain.TicketPriorityMedium, domain.TicketPriorityHigh, domain.TicketPriorityCritical:
		return true
	}
	return false
}

func applyRuleInput(rule *domain.SLARule, input SLARuleInput) {
	rule.Name = strings.TrimSpace(input.Name)
	rule.Description = strings.TrimSpace(input.Description)
	rule.DepartmentID = input.DepartmentID
	rule.Priorities = input.Priorities
	rule.CustomerTypes = input.CustomerTypes
	rule.FirstResponseTime = input.FirstResponseTime
	rule.ResolutionTime = input.ResolutionTime
	rule.BusinessHoursOnly = input.BusinessHoursOnly
	rule.CalendarName = input.CalendarName
	rule.PauseConditions = input.PauseConditions
	rule.EscalationLevels = input.EscalationLevels
	if input.IsActive != nil {
		rule.IsActive = *input.IsActive
	}
}

func ruleError(err error, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound("sla rule", map[string]any{"rule_id": id})
	}
	return apperrors.MapError(err)
}
