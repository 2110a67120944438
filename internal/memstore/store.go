// Package memstore is an in-process request store with the same claim and
// transition semantics as the Postgres store. The server falls back to it
// when no DATABASE_URL is configured.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/secops-portal/backend/internal/assignment"
	"github.com/secops-portal/backend/internal/models"
)

type Store struct {
	Now func() time.Time

	mu       sync.Mutex
	requests map[string]*models.Request
	order    []string
	rules    map[string]models.RoutingRule
	history  map[string][]models.HistoryEntry
}

func New() *Store {
	return &Store{
		Now:      func() time.Time { return time.Now().UTC() },
		requests: map[string]*models.Request{},
		rules:    map[string]models.RoutingRule{},
		history:  map[string][]models.HistoryEntry{},
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() {}

func (s *Store) CreateRequest(ctx context.Context, in models.NewRequest) (models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	r := &models.Request{
		ID:          uuid.NewString(),
		ServiceType: strings.TrimSpace(in.ServiceType),
		Title:       in.Title,
		Description: in.Description,
		RequestedBy: in.RequestedBy,
		Status:      models.StatusNew,
		Data:        copyData(in.Data),
		CreatedAt:   now,
		UpdatedAt:   now,
		Comments:    []models.Comment{},
	}
	s.requests[r.ID] = r
	s.order = append(s.order, r.ID)
	return clone(r), nil
}

func (s *Store) GetRequest(ctx context.Context, requestID string) (models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[requestID]
	if !ok {
		return models.Request{}, models.ErrNotFound
	}
	return clone(r), nil
}

func (s *Store) AvailableRequests(ctx context.Context, agentID string) ([]models.Request, error) {
	return s.filter(func(r *models.Request) bool {
		if r.Status != models.StatusNew || r.AssignedTo != nil {
			return false
		}
		rule, ok := s.rules[r.ServiceType]
		return ok && rule.Eligible(agentID)
	}), nil
}

func (s *Store) AssignedRequests(ctx context.Context, agentID string) ([]models.Request, error) {
	return s.filter(func(r *models.Request) bool {
		switch r.Status {
		case models.StatusAssigned:
			return r.AssignedTo != nil && *r.AssignedTo == agentID
		case models.StatusPendingInvestigation:
			return handledBy(r, agentID)
		}
		return false
	}), nil
}

func (s *Store) SubmittedRequests(ctx context.Context, agentID string) ([]models.Request, error) {
	return s.filter(func(r *models.Request) bool {
		return (r.Status == models.StatusCompleted || r.Status == models.StatusUnableToHandle) && handledBy(r, agentID)
	}), nil
}

func (s *Store) SentBackRequests(ctx context.Context, agentID string) ([]models.Request, error) {
	return s.filter(func(r *models.Request) bool {
		return r.Status == models.StatusSentBack && handledBy(r, agentID)
	}), nil
}

// ListStaleAssigned returns requests that have been assigned since before the
// given time.
func (s *Store) ListStaleAssigned(ctx context.Context, before time.Time) ([]models.Request, error) {
	return s.filter(func(r *models.Request) bool {
		return r.Status == models.StatusAssigned && r.AssignedAt != nil && r.AssignedAt.Before(before)
	}), nil
}

func (s *Store) ClaimRequest(ctx context.Context, requestID, agentID string) (models.Request, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[requestID]
	if !ok {
		return models.Request{}, false, models.ErrNotFound
	}
	if r.AssignedTo != nil {
		if *r.AssignedTo == agentID {
			return clone(r), false, nil
		}
		return models.Request{}, false, models.ErrClaimConflict
	}
	if !r.Status.Claimable() {
		return models.Request{}, false, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, r.Status, models.StatusAssigned)
	}
	rule, ok := s.rules[r.ServiceType]
	if !ok || !rule.Eligible(agentID) {
		return models.Request{}, false, models.ErrNotEligible
	}

	now := s.Now()
	from := r.Status
	r.Status = models.StatusAssigned
	r.AssignedTo = strPtr(agentID)
	r.HandledBy = strPtr(agentID)
	r.UpdatedBy = strPtr(agentID)
	r.AssignedAt = &now
	r.UpdatedAt = now
	r.Details = ""
	s.record(r.ID, from, r.Status, agentID, "", now)
	return clone(r), true, nil
}

func (s *Store) UpdateRequestStatus(ctx context.Context, requestID string, status models.Status, agentID string, extra models.StatusExtra) (models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[requestID]
	if !ok {
		return models.Request{}, models.ErrNotFound
	}
	if extra.AssignedBefore != nil && !(r.Status == models.StatusAssigned && r.AssignedAt != nil && r.AssignedAt.Before(*extra.AssignedBefore)) {
		return models.Request{}, models.ErrClaimChanged
	}
	if !models.CanTransition(r.Status, status) {
		return models.Request{}, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, r.Status, status)
	}
	assignee := extra.Assignee(agentID)
	if status == models.StatusAssigned {
		if rule, ok := s.rules[r.ServiceType]; !ok || !rule.Eligible(assignee) {
			return models.Request{}, models.ErrNotEligible
		}
	}

	now := s.Now()
	from := r.Status
	r.Status = status
	if status == models.StatusAssigned {
		r.AssignedTo = strPtr(assignee)
		r.AssignedAt = &now
	} else {
		r.AssignedTo = nil
		r.AssignedAt = nil
	}
	r.HandledBy = strPtr(agentID)
	r.UpdatedBy = strPtr(agentID)
	r.Details = extra.Details
	r.UpdatedAt = now
	s.record(r.ID, from, status, agentID, extra.Details, now)
	return clone(r), nil
}

func (s *Store) AddComment(ctx context.Context, requestID, agentID, text string, sendBackReason bool) (models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[requestID]
	if !ok {
		return models.Comment{}, models.ErrNotFound
	}
	c := models.Comment{
		ID:               uuid.NewString(),
		RequestID:        requestID,
		AuthorID:         agentID,
		Text:             text,
		IsSendBackReason: sendBackReason,
		CreatedAt:        s.Now(),
	}
	r.Comments = append(r.Comments, c)
	return c, nil
}

func (s *Store) UpdateRequestData(ctx context.Context, requestID string, fields models.RequestFields, agentID string) (models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[requestID]
	if !ok {
		return models.Request{}, models.ErrNotFound
	}
	if fields.Title != nil {
		r.Title = *fields.Title
	}
	if fields.Description != nil {
		r.Description = *fields.Description
	}
	if len(fields.Data) > 0 {
		if r.Data == nil {
			r.Data = map[string]any{}
		}
		for k, v := range fields.Data {
			r.Data[k] = v
		}
	}
	r.UpdatedBy = strPtr(agentID)
	r.UpdatedAt = s.Now()
	return clone(r), nil
}

func (s *Store) RequestHistory(ctx context.Context, requestID string) ([]models.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[requestID]; !ok {
		return nil, models.ErrNotFound
	}
	return append([]models.HistoryEntry{}, s.history[requestID]...), nil
}

func (s *Store) ListRoutingRules(ctx context.Context) ([]models.RoutingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RoutingRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, cloneRule(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServiceType < out[j].ServiceType })
	return out, nil
}

func (s *Store) GetRoutingRule(ctx context.Context, serviceType string) (*models.RoutingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[serviceType]
	if !ok {
		return nil, nil
	}
	out := cloneRule(r)
	return &out, nil
}

func (s *Store) SaveRoutingRule(ctx context.Context, rule models.RoutingRule) (models.RoutingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule = assignment.NormalizeRule(rule)
	if prev, ok := s.rules[rule.ServiceType]; ok {
		rule.LastAssignedAgent = prev.LastAssignedAgent
	}
	rule.UpdatedAt = s.Now()
	s.rules[rule.ServiceType] = cloneRule(rule)
	return cloneRule(rule), nil
}

func (s *Store) DeleteRoutingRule(ctx context.Context, serviceType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rules, serviceType)
	return nil
}

func (s *Store) NextAvailableAgent(ctx context.Context, serviceType string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[serviceType]
	if !ok {
		return "", false, nil
	}
	loads := map[string]int{}
	for _, r := range s.requests {
		if r.Status == models.StatusAssigned && r.AssignedTo != nil {
			loads[*r.AssignedTo]++
		}
	}
	agentID, ok := assignment.PickAgent(rule, loads)
	if !ok {
		return "", false, nil
	}
	rule.LastAssignedAgent = strPtr(agentID)
	s.rules[serviceType] = rule
	return agentID, true, nil
}

func (s *Store) filter(keep func(*models.Request) bool) []models.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Request{}
	for _, id := range s.order {
		if r := s.requests[id]; keep(r) {
			out = append(out, clone(r))
		}
	}
	return out
}

func (s *Store) record(requestID string, from, to models.Status, actor, details string, at time.Time) {
	s.history[requestID] = append(s.history[requestID], models.HistoryEntry{
		ID:         uuid.NewString(),
		RequestID:  requestID,
		FromStatus: from,
		ToStatus:   to,
		ActorID:    actor,
		Details:    details,
		CreatedAt:  at,
	})
}

func handledBy(r *models.Request, agentID string) bool {
	return r.HandledBy != nil && *r.HandledBy == agentID
}

func clone(r *models.Request) models.Request {
	out := *r
	out.Data = copyData(r.Data)
	out.Comments = append([]models.Comment{}, r.Comments...)
	return out
}

func cloneRule(r models.RoutingRule) models.RoutingRule {
	r.AssignedUsers = append([]string{}, r.AssignedUsers...)
	return r
}

func copyData(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func strPtr(s string) *string {
	return &s
}
