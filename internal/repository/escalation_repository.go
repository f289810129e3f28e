package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helpdesk-sla/sla-service/internal/domain"
)

// EscalationRepository stores which escalation levels already fired per ticket and rule.
type EscalationRepository interface {
	FiredLevels(ctx context.Context, ticketID string, ruleID int64) ([]int, error)
	RecordFirings(ctx context.Context, firings []domain.EscalationFiring) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.EscalationFiring, error)
	CountByRule(ctx context.Context, ruleID int64) (int, error)
}

type escalationRepository struct {
	pool *pgxpool.Pool
}

// NewEscalationRepository builds the repository.
func NewEscalationRepository(pool *pgxpool.Pool) EscalationRepository {
	return &escalationRepository{pool: pool}
}

func (r *escalationRepository) FiredLevels(ctx context.Context, ticketID string, ruleID int64) ([]int, error) {
	const query = `
        SELECT level FROM sla_escalation_firings
        WHERE ticket_id=$1 AND rule_id=$2 ORDER BY level ASC`
	rows, err := r.pool.Query(ctx, query, ticketID, ruleID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int])
}

// RecordFirings inserts all firings in one transaction. Rows that already exist are
// left untouched, so recording the same level twice is harmless.
func (r *escalationRepository) RecordFirings(ctx context.Context, firings []domain.EscalationFiring) error {
	if len(firings) == 0 {
		return nil
	}
	const query = `
        INSERT INTO sla_escalation_firings (id, ticket_id, rule_id, level, action,
            target_user_id, target_department_id, fired_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (ticket_id, rule_id, level) DO NOTHING`
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, f := range firings {
			if _, err := tx.Exec(ctx, query,
				f.ID,
				f.TicketID,
				f.RuleID,
				f.Level,
				string(f.Action),
				f.TargetUserID,
				f.TargetDepartmentID,
				f.FiredAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *escalationRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.EscalationFiring, error) {
	const query = `
        SELECT id, ticket_id, rule_id, level, action, target_user_id, target_department_id, fired_at
        FROM sla_escalation_firings WHERE ticket_id=$1 ORDER BY fired_at ASC, level ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.EscalationFiring
	for rows.Next() {
		var (
			f      domain.EscalationFiring
			action string
		)
		if err := rows.Scan(
			&f.ID,
			&f.TicketID,
			&f.RuleID,
			&f.Level,
			&action,
			&f.TargetUserID,
			&f.TargetDepartmentID,
			&f.FiredAt,
		); err != nil {
			return nil, err
		}
		f.Action = domain.EscalationAction(action)
		result = append(result, f)
	}
	return result, rows.Err()
}

func (r *escalationRepository) CountByRule(ctx context.Context, ruleID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sla_escalation_firings WHERE rule_id=$1`, ruleID).Scan(&count)
	return count, err
}
