package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helpdesk-sla/sla-service/internal/domain"
)

// SLARuleRepository persists SLA rules.
type SLARuleRepository interface {
	Create(ctx context.Context, rule *domain.SLARule) error
	Update(ctx context.Context, rule *domain.SLARule) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*domain.SLARule, error)
	List(ctx context.Context) ([]domain.SLARule, error)
	ListActive(ctx context.Context) ([]domain.SLARule, error)
}

type slaRuleRepository struct {
	pool *pgxpool.Pool
}

// NewSLARuleRepository builds the repository.
func NewSLARuleRepository(pool *pgxpool.Pool) SLARuleRepository {
	return &slaRuleRepository{pool: pool}
}

const slaRuleColumns = `
        id, name, description, department_id, priorities, customer_types,
        first_response_time, resolution_time, business_hours_only, calendar_name,
        is_active, pause_conditions, escalation_levels, version, created_at, updated_at`

func (r *slaRuleRepository) Create(ctx context.Context, rule *domain.SLARule) error {
	const query = `
        INSERT INTO sla_rules (name, description, department_id, priorities, customer_types,
            first_response_time, resolution_time, business_hours_only, calendar_name,
            is_active, pause_conditions, escalation_levels)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        RETURNING id, version, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		rule.Name,
		rule.Description,
		rule.DepartmentID,
		priorityStrings(rule.Priorities),
		nonNilStrings(rule.CustomerTypes),
		rule.FirstResponseTime,
		rule.ResolutionTime,
		rule.BusinessHoursOnly,
		rule.CalendarName,
		rule.IsActive,
		pauseReasonStrings(rule.PauseConditions),
		nonNilLevels(rule.EscalationLevels),
	).Scan(&rule.ID, &rule.Version, &rule.CreatedAt, &rule.UpdatedAt)
}

func (r *slaRuleRepository) Update(ctx context.Context, rule *domain.SLARule) error {
	const query = `
        UPDATE sla_rules SET name=$1, description=$2, department_id=$3, priorities=$4,
            customer_types=$5, first_response_time=$6, resolution_time=$7,
            business_hours_only=$8, calendar_name=$9, is_active=$10, pause_conditions=$11,
            escalation_levels=$12, version=version+1, updated_at=NOW()
        WHERE id=$13
        RETURNING version, updated_at`
	err := r.pool.QueryRow(ctx, query,
		rule.Name,
		rule.Description,
		rule.DepartmentID,
		priorityStrings(rule.Priorities),
		nonNilStrings(rule.CustomerTypes),
		rule.FirstResponseTime,
		rule.ResolutionTime,
		rule.BusinessHoursOnly,
		rule.CalendarName,
		rule.IsActive,
		pauseReasonStrings(rule.PauseConditions),
		nonNilLevels(rule.EscalationLevels),
		rule.ID,
	).Scan(&rule.Version, &rule.UpdatedAt)
	return err
}

func (r *slaRuleRepository) Delete(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM sla_rules WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *slaRuleRepository) GetByID(ctx context.Context, id int64) (*domain.SLARule, error) {
	query := `SELECT ` + slaRuleColumns + ` FROM sla_rules WHERE id=$1`
	var rule domain.SLARule
	if err := scanRule(r.pool.QueryRow(ctx, query, id), &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *slaRuleRepository) List(ctx context.Context) ([]domain.SLARule, error) {
	return r.list(ctx, `SELECT `+slaRuleColumns+` FROM sla_rules ORDER BY name ASC, id ASC`)
}

func (r *slaRuleRepository) ListActive(ctx context.Context) ([]domain.SLARule, error) {
	return r.list(ctx, `SELECT `+slaRuleColumns+` FROM sla_rules WHERE is_active = TRUE ORDER BY id ASC`)
}

func (r *slaRuleRepository) list(ctx context.Context, query string) ([]domain.SLARule, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLARule
	for rows.Next() {
		var rule domain.SLARule
		if err := scanRule(rows, &rule); err != nil {
			return nil, err
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}

func scanRule(row pgx.Row, rule *domain.SLARule) error {
	var priorities, pauseConditions []string
	if err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Description,
		&rule.DepartmentID,
		&priorities,
		&rule.CustomerTypes,
		&rule.FirstResponseTime,
		&rule.ResolutionTime,
		&rule.BusinessHoursOnly,
		&rule.CalendarName,
		&rule.IsActive,
		&pauseConditions,
		&rule.EscalationLevels,
		&rule.Version,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return err
	}
	rule.Priorities = make([]domain.TicketPriority, 0, len(priorities))
	for _, p := range priorities {
		rule.Priorities = append(rule.Priorities, domain.TicketPriority(p))
	}
	rule.PauseConditions = make([]domain.PauseReason, 0, len(pauseConditions))
	for _, pc := range pauseConditions {
		rule.PauseConditions = append(rule.PauseConditions, domain.PauseReason(pc))
	}
	return nil
}

func priorityStrings(ps []domain.TicketPriority) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, string(p))
	}
	return out
}

func pauseReasonStrings(rs []domain.PauseReason) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, string(r))
	}
	return out
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func nonNilLevels(v []domain.EscalationLevel) []domain.EscalationLevel {
	if v == nil {
		return []domain.EscalationLevel{}
	}
	return v
}
