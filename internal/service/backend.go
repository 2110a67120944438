package service

import (
	"context"

	"github.com/secops-portal/backend/internal/models"
)

// TaskBackend is the request store the lifecycle engine drives. It is the
// single source of truth for claim arbitration: ClaimRequest must behave as a
// compare-and-set on an unclaimed request. Its bool result is false when the
// agent already held the request and nothing changed.
type TaskBackend interface {
	GetRequest(ctx context.Context, requestID string) (models.Request, error)
	AvailableRequests(ctx context.Context, agentID string) ([]models.Request, error)
	AssignedRequests(ctx context.Context, agentID string) ([]models.Request, error)
	SubmittedRequests(ctx context.Context, agentID string) ([]models.Request, error)
	SentBackRequests(ctx context.Context, agentID string) ([]models.Request, error)
	ClaimRequest(ctx context.Context, requestID, agentID string) (models.Request, bool, error)
	UpdateRequestStatus(ctx context.Context, requestID string, status models.Status, agentID string, extra models.StatusExtra) (models.Request, error)
	AddComment(ctx context.Context, requestID, agentID, text string, sendBackReason bool) (models.Comment, error)
	UpdateRequestData(ctx context.Context, requestID string, fields models.RequestFields, agentID string) (models.Request, error)
	RequestHistory(ctx context.Context, requestID string) ([]models.HistoryEntry, error)
}

// RuleBackend persists routing rules and resolves the next agent for a
// service type. GetRoutingRule returns a nil rule when none is configured.
type RuleBackend interface {
	ListRoutingRules(ctx context.Context) ([]models.RoutingRule, error)
	GetRoutingRule(ctx context.Context, serviceType string) (*models.RoutingRule, error)
	SaveRoutingRule(ctx context.Context, rule models.RoutingRule) (models.RoutingRule, error)
	DeleteRoutingRule(ctx context.Context, serviceType string) error
	NextAvailableAgent(ctx context.Context, serviceType string) (string, bool, error)
}

// Recorder receives workflow events. A nil Recorder is allowed.
type Recorder interface {
	ObserveTransition(to models.Status)
	ObserveClaimConflict()
}
