package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/secops-portal/backend/internal/models"
)

//go:embed schema.sql
var schema string

const foreignKeyViolation = "23503"

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

// Migrate creates the tables if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, schema)
	return err
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func requestColumns(prefix string) string {
	cols := []string{"id", "service_type", "title", "description", "requested_by", "status", "assigned_to",
		"handled_by", "details", "data", "updated_by", "created_at", "updated_at", "assigned_at"}
	for i, c := range cols {
		cols[i] = prefix + c
	}
	return strings.Join(cols, ", ")
}

func scanRequest(row pgx.Row, extra ...any) (models.Request, error) {
	var (
		r      models.Request
		status string
	)
	dest := append(extra,
		&r.ID, &r.ServiceType, &r.Title, &r.Description, &r.RequestedBy, &status, &r.AssignedTo,
		&r.HandledBy, &r.Details, &r.Data, &r.UpdatedBy, &r.CreatedAt, &r.UpdatedAt, &r.AssignedAt,
	)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Request{}, models.ErrNotFound
		}
		return models.Request{}, err
	}
	r.Status = models.Status(status)
	r.Comments = []models.Comment{}
	return r, nil
}

func (s *Store) CreateRequest(ctx context.Context, in models.NewRequest) (models.Request, error) {
	data := in.Data
	if data == nil {
		data = map[string]any{}
	}
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO requests (id, service_type, title, description, requested_by, status, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING `+requestColumns(""),
		uuid.NewString(), strings.TrimSpace(in.ServiceType), in.Title, in.Description, in.RequestedBy, string(models.StatusNew), data)
	return scanRequest(row)
}

func (s *Store) GetRequest(ctx context.Context, requestID string) (models.Request, error) {
	r, err := scanRequest(s.Pool.QueryRow(ctx, `SELECT `+requestColumns("")+` FROM requests WHERE id = $1`, requestID))
	if err != nil {
		return models.Request{}, err
	}
	return s.withComments(ctx, r)
}

func (s *Store) withComments(ctx context.Context, r models.Request) (models.Request, error) {
	comments, err := s.loadComments(ctx, []string{r.ID})
	if err != nil {
		return models.Request{}, err
	}
	r.Comments = append(r.Comments, comments[r.ID]...)
	return r, nil
}

func (s *Store) AvailableRequests(ctx context.Context, agentID string) ([]models.Request, error) {
	return s.listRequests(ctx, `
		SELECT `+requestColumns("r.")+`
		FROM requests r
		JOIN routing_rules rr ON rr.service_type = r.service_type
		WHERE r.status = 'new' AND r.assigned_to IS NULL
			AND rr.is_active AND $1 = ANY(rr.assigned_users)
		ORDER BY r.created_at ASC, r.id ASC`, agentID)
}

func (s *Store) AssignedRequests(ctx context.Context, agentID string) ([]models.Request, error) {
	return s.listRequests(ctx, `
		SELECT `+requestColumns("")+`
		FROM requests
		WHERE (status = 'assigned' AND assigned_to = $1)
			OR (status = 'pending_investigation' AND handled_by = $1)
		ORDER BY created_at ASC, id ASC`, agentID)
}

func (s *Store) SubmittedRequests(ctx context.Context, agentID string) ([]models.Request, error) {
	return s.listRequests(ctx, `
		SELECT `+requestColumns("")+`
		FROM requests
		WHERE status IN ('completed', 'unable_to_handle') AND handled_by = $1
		ORDER BY updated_at DESC, id ASC`, agentID)
}

func (s *Store) SentBackRequests(ctx context.Context, agentID string) ([]models.Request, error) {
	return s.listRequests(ctx, `
		SELECT `+requestColumns("")+`
		FROM requests
		WHERE status = 'sent_back' AND handled_by = $1
		ORDER BY updated_at DESC, id ASC`, agentID)
}

// ListStaleAssigned returns requests that have been assigned since before the
// given time.
func (s *Store) ListStaleAssigned(ctx context.Context, before time.Time) ([]models.Request, error) {
	return s.listRequests(ctx, `
		SELECT `+requestColumns("")+`
		FROM requests
		WHERE status = 'assigned' AND assigned_at < $1
		ORDER BY assigned_at ASC`, before)
}

func (s *Store) listRequests(ctx context.Context, query string, args ...any) ([]models.Request, error) {
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Request{}
	var ids []string
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
		ids = append(ids, r.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	comments, err := s.loadComments(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Comments = append(out[i].Comments, comments[out[i].ID]...)
	}
	return out, nil
}

func (s *Store) loadComments(ctx context.Context, requestIDs []string) (map[string][]models.Comment, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, request_id, author_id, text, is_send_back_reason, created_at
		FROM request_comments
		WHERE request_id = ANY($1)
		ORDER BY created_at ASC, id ASC`, requestIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]models.Comment{}
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.RequestID, &c.AuthorID, &c.Text, &c.IsSendBackReason, &c.CreatedAt); err != nil {
			return nil, err
		}
		out[c.RequestID] = append(out[c.RequestID], c)
	}
	return out, rows.Err()
}

// ClaimRequest assigns the request with a single conditional update: it only
// matches while the request is claimable, unassigned and the agent is listed
// on an active rule for its service type. When nothing matches the current
// row is inspected to report why.
func (s *Store) ClaimRequest(ctx context.Context, requestID, agentID string) (models.Request, bool, error) {
	var (
		out     models.Request
		claimed bool
	)
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		var from string
		r, err := scanRequest(tx.QueryRow(ctx, `
			WITH prev AS (
				SELECT id, status FROM requests WHERE id = $1
			)
			UPDATE requests r
			SET status = 'assigned', assigned_to = $2, handled_by = $2, updated_by = $2,
				details = '', assigned_at = NOW(), updated_at = NOW()
			FROM prev
			WHERE r.id = prev.id
				AND r.status = ANY($3)
				AND r.assigned_to IS NULL
				AND EXISTS (
					SELECT 1 FROM routing_rules rr
					WHERE rr.service_type = r.service_type AND rr.is_active AND $2 = ANY(rr.assigned_users)
				)
			RETURNING prev.status, `+requestColumns("r."),
			requestID, agentID, statusStrings(models.SourcesOf(models.StatusAssigned))), &from)
		if errors.Is(err, models.ErrNotFound) {
			out, err = s.diagnoseClaim(ctx, tx, requestID, agentID)
			return err
		}
		if err != nil {
			return err
		}
		if err := insertHistory(ctx, tx, r.ID, models.Status(from), r.Status, agentID, ""); err != nil {
			return err
		}
		out, claimed = r, true
		return nil
	})
	if err != nil {
		return models.Request{}, false, err
	}
	out, err = s.withComments(ctx, out)
	if err != nil {
		return models.Request{}, false, err
	}
	return out, claimed, nil
}

// diagnoseClaim explains why the conditional claim matched no row. A request
// the agent already holds is returned as is.
func (s *Store) diagnoseClaim(ctx context.Context, tx pgx.Tx, requestID, agentID string) (models.Request, error) {
	current, err := scanRequest(tx.QueryRow(ctx, `SELECT `+requestColumns("")+` FROM requests WHERE id = $1`, requestID))
	if err != nil {
		return models.Request{}, err
	}
	switch {
	case current.AssignedTo != nil && *current.AssignedTo == agentID:
		return current, nil
	case current.AssignedTo != nil:
		return models.Request{}, models.ErrClaimConflict
	case !current.Status.Claimable():
		return models.Request{}, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, current.Status, models.StatusAssigned)
	default:
		return models.Request{}, models.ErrNotEligible
	}
}

func (s *Store) UpdateRequestStatus(ctx context.Context, requestID string, status models.Status, agentID string, extra models.StatusExtra) (models.Request, error) {
	var out models.Request
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		var (
			from       string
			assignedAt *time.Time
		)
		err := tx.QueryRow(ctx, `SELECT status, assigned_at FROM requests WHERE id = $1 FOR UPDATE`, requestID).Scan(&from, &assignedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrNotFound
			}
			return err
		}
		if extra.AssignedBefore != nil && !(models.Status(from) == models.StatusAssigned && assignedAt != nil && assignedAt.Before(*extra.AssignedBefore)) {
			return models.ErrClaimChanged
		}
		if !models.CanTransition(models.Status(from), status) {
			return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, status)
		}

		var assignee *string
		if status == models.StatusAssigned {
			a := extra.Assignee(agentID)
			var eligible bool
			if err := tx.QueryRow(ctx, `
				SELECT EXISTS (
					SELECT 1 FROM requests r JOIN routing_rules rr ON rr.service_type = r.service_type
					WHERE r.id = $1 AND rr.is_active AND $2 = ANY(rr.assigned_users)
				)`, requestID, a).Scan(&eligible); err != nil {
				return err
			}
			if !eligible {
				return models.ErrNotEligible
			}
			assignee = &a
		}

		r, err := scanRequest(tx.QueryRow(ctx, `
			UPDATE requests
			SET status = $2, assigned_to = $3, handled_by = $4, updated_by = $4, details = $5,
				assigned_at = CASE WHEN $3::text IS NULL THEN NULL ELSE NOW() END,
				updated_at = NOW()
			WHERE id = $1
			RETURNING `+requestColumns(""),
			requestID, string(status), assignee, agentID, extra.Details))
		if err != nil {
			return err
		}
		if err := insertHistory(ctx, tx, requestID, models.Status(from), status, agentID, extra.Details); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return models.Request{}, err
	}
	return s.withComments(ctx, out)
}

func (s *Store) AddComment(ctx context.Context, requestID, agentID, text string, sendBackReason bool) (models.Comment, error) {
	c := models.Comment{
		ID:               uuid.NewString(),
		RequestID:        requestID,
		AuthorID:         agentID,
		Text:             text,
		IsSendBackReason: sendBackReason,
	}
	err := s.Pool.QueryRow(ctx, `
		INSERT INTO request_comments (id, request_id, author_id, text, is_send_back_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at`,
		c.ID, c.RequestID, c.AuthorID, c.Text, c.IsSendBackReason).Scan(&c.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return models.Comment{}, models.ErrNotFound
		}
		return models.Comment{}, err
	}
	return c, nil
}

func (s *Store) UpdateRequestData(ctx context.Context, requestID string, fields models.RequestFields, agentID string) (models.Request, error) {
	data := fields.Data
	if data == nil {
		data = map[string]any{}
	}
	r, err := scanRequest(s.Pool.QueryRow(ctx, `
		UPDATE requests
		SET title = COALESCE($2, title),
			description = COALESCE($3, description),
			data = data || $4::jsonb,
			updated_by = $5,
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+requestColumns(""),
		requestID, fields.Title, fields.Description, data, agentID))
	if err != nil {
		return models.Request{}, err
	}
	return s.withComments(ctx, r)
}

func (s *Store) RequestHistory(ctx context.Context, requestID string) ([]models.HistoryEntry, error) {
	var exists bool
	if err := s.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM requests WHERE id = $1)`, requestID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, models.ErrNotFound
	}

	rows, err := s.Pool.Query(ctx, `
		SELECT id, request_id, from_status, to_status, actor_id, details, created_at
		FROM request_history
		WHERE request_id = $1
		ORDER BY seq ASC`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.HistoryEntry{}
	for rows.Next() {
		var (
			h        models.HistoryEntry
			from, to string
		)
		if err := rows.Scan(&h.ID, &h.RequestID, &from, &to, &h.ActorID, &h.Details, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.FromStatus = models.Status(from)
		h.ToStatus = models.Status(to)
		out = append(out, h)
	}
	return out, rows.Err()
}

func insertHistory(ctx context.Context, tx pgx.Tx, requestID string, from, to models.Status, actorID, details string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO request_history (id, request_id, from_status, to_status, actor_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		uuid.NewString(), requestID, string(from), string(to), actorID, details)
	return err
}

func statusStrings(statuses []models.Status) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
