package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/secops-portal/backend/internal/assignment"
	"github.com/secops-portal/backend/internal/models"
)

const ruleColumns = `service_type, is_active, auto_assign, assigned_users, strategy, last_assigned_agent, updated_at`

func scanRule(row pgx.Row) (models.RoutingRule, error) {
	var r models.RoutingRule
	err := row.Scan(&r.ServiceType, &r.IsActive, &r.AutoAssign, &r.AssignedUsers, &r.Strategy, &r.LastAssignedAgent, &r.UpdatedAt)
	if r.AssignedUsers == nil {
		r.AssignedUsers = []string{}
	}
	return r, err
}

func (s *Store) ListRoutingRules(ctx context.Context) ([]models.RoutingRule, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+ruleColumns+` FROM routing_rules ORDER BY service_type ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.RoutingRule{}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetRoutingRule(ctx context.Context, serviceType string) (*models.RoutingRule, error) {
	r, err := scanRule(s.Pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM routing_rules WHERE service_type = $1`, serviceType))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

func (s *Store) SaveRoutingRule(ctx context.Context, rule models.RoutingRule) (models.RoutingRule, error) {
	rule = assignment.NormalizeRule(rule)
	return scanRule(s.Pool.QueryRow(ctx, `
		INSERT INTO routing_rules (service_type, is_active, auto_assign, assigned_users, strategy, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (service_type) DO UPDATE SET
			is_active = EXCLUDED.is_active,
			auto_assign = EXCLUDED.auto_assign,
			assigned_users = EXCLUDED.assigned_users,
			strategy = EXCLUDED.strategy,
			updated_at = EXCLUDED.updated_at
		RETURNING `+ruleColumns,
		rule.ServiceType, rule.IsActive, rule.AutoAssign, rule.AssignedUsers, rule.Strategy))
}

func (s *Store) DeleteRoutingRule(ctx context.Context, serviceType string) error {
	_, err := s.Pool.Exec(ctx, `DELETE FROM routing_rules WHERE service_type = $1`, serviceType)
	return err
}

// NextAvailableAgent picks the next agent under a row lock on the rule so
// concurrent callers advance the round-robin cursor one at a time.
func (s *Store) NextAvailableAgent(ctx context.Context, serviceType string) (string, bool, error) {
	var (
		agentID string
		found   bool
	)
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		rule, err := scanRule(tx.QueryRow(ctx, `SELECT `+ruleColumns+` FROM routing_rules WHERE service_type = $1 FOR UPDATE`, serviceType))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}

		loads := map[string]int{}
		if rule.Strategy == models.StrategyLeastLoaded {
			loads, err = agentLoads(ctx, tx, rule.AssignedUsers)
			if err != nil {
				return err
			}
		}
		agentID, found = assignment.PickAgent(rule, loads)
		if !found {
			return nil
		}
		_, err = tx.Exec(ctx, `UPDATE routing_rules SET last_assigned_agent = $2 WHERE service_type = $1`, serviceType, agentID)
		return err
	})
	if err != nil {
		return "", false, err
	}
	return agentID, found, nil
}

func agentLoads(ctx context.Context, tx pgx.Tx, agents []string) (map[string]int, error) {
	rows, err := tx.Query(ctx, `
		SELECT assigned_to, COUNT(*)
		FROM requests
		WHERE status = 'assigned' AND assigned_to = ANY($1)
		GROUP BY assigned_to`, agents)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			id    string
			count int
		)
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		out[id] = count
	}
	return out, rows.Err()
}
