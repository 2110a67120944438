package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/secops-portal/backend/internal/models"
)

const AutoReturnDetails = "Automatically returned to queue due to inactivity"

// TaskService is the request lifecycle engine. It validates arguments, then
// delegates every mutation to the backend; it holds no locks of its own.
type TaskService struct {
	Backend TaskBackend
	Rules   *RoutingService
	Metrics Recorder
	Logger  zerolog.Logger
}

func (s *TaskService) GetRequest(ctx context.Context, requestID string) (models.Request, error) {
	if blank(requestID) {
		return models.Request{}, models.ValidationError{Message: "Request ID is required"}
	}
	return s.Backend.GetRequest(ctx, requestID)
}

func (s *TaskService) History(ctx context.Context, requestID string) ([]models.HistoryEntry, error) {
	if blank(requestID) {
		return nil, models.ValidationError{Message: "Request ID is required"}
	}
	entries, err := s.Backend.RequestHistory(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	return entries, nil
}

// ClaimRequest assigns an unclaimed request to agentID. Races between agents
// are settled by the backend; the loser gets models.ErrClaimConflict.
func (s *TaskService) ClaimRequest(ctx context.Context, requestID, agentID string) (models.Request, error) {
	if blank(requestID) || blank(agentID) {
		return models.Request{}, models.ValidationError{Message: "Request ID and User ID are required"}
	}
	req, claimed, err := s.Backend.ClaimRequest(ctx, requestID, agentID)
	if err != nil {
		if errors.Is(err, models.ErrClaimConflict) && s.Metrics != nil {
			s.Metrics.ObserveClaimConflict()
		}
		s.Logger.Warn().Err(err).Str("request_id", requestID).Str("agent_id", agentID).Msg("claim failed")
		return models.Request{}, err
	}
	if !claimed {
		return req, nil
	}
	s.observe(models.StatusAssigned)
	s.Logger.Info().Str("request_id", requestID).Str("agent_id", agentID).Msg("request claimed")
	return req, nil
}

// UpdateStatus moves a request to status. Legality of the move is checked by
// the backend against the transition table.
func (s *TaskService) UpdateStatus(ctx context.Context, requestID string, status models.Status, agentID string, extra models.StatusExtra) (models.Request, error) {
	if blank(requestID) || blank(string(status)) || blank(agentID) {
		return models.Request{}, models.ValidationError{Message: "Request ID, status, and User ID are required"}
	}
	if !status.Valid() {
		return models.Request{}, models.ValidationError{Message: "Unknown status: " + string(status)}
	}
	if status != models.StatusAssigned {
		extra.AssignedTo = nil
	}
	req, err := s.Backend.UpdateRequestStatus(ctx, requestID, status, agentID, extra)
	if err != nil {
		s.Logger.Warn().Err(err).Str("request_id", requestID).Str("status", string(status)).Msg("status update failed")
		return models.Request{}, err
	}
	s.observe(status)
	s.Logger.Info().Str("request_id", requestID).Str("status", string(status)).Str("agent_id", agentID).Msg("request status updated")
	return req, nil
}

// SubmitResponse records the agent's response as a comment and completes the
// request. The status update is only attempted once the comment is stored.
func (s *TaskService) SubmitResponse(ctx context.Context, requestID, responseText, agentID string) (models.Request, error) {
	if blank(requestID) || blank(responseText) || blank(agentID) {
		return models.Request{}, models.ValidationError{Message: "Request ID, response text, and User ID are required"}
	}
	if _, err := s.Backend.AddComment(ctx, requestID, agentID, responseText, false); err != nil {
		s.Logger.Warn().Err(err).Str("request_id", requestID).Msg("response comment failed")
		return models.Request{}, err
	}
	req, err := s.UpdateStatus(ctx, requestID, models.StatusCompleted, agentID, models.StatusExtra{})
	if err != nil {
		return models.Request{}, &StageError{Completed: "comment", Failed: "status update", Err: err}
	}
	return req, nil
}

// SendBackToRequestor records reasonText as a send-back comment, then returns
// the request to its requestor with the assignment cleared.
func (s *TaskService) SendBackToRequestor(ctx context.Context, requestID, reasonText, agentID string) (models.Request, error) {
	if blank(requestID) || blank(reasonText) || blank(agentID) {
		return models.Request{}, models.ValidationError{Message: "Request ID, reason, and User ID are required"}
	}
	if _, err := s.Backend.AddComment(ctx, requestID, agentID, reasonText, true); err != nil {
		s.Logger.Warn().Err(err).Str("request_id", requestID).Msg("send-back comment failed")
		return models.Request{}, err
	}
	req, err := s.UpdateStatus(ctx, requestID, models.StatusSentBack, agentID, models.StatusExtra{})
	if err != nil {
		return models.Request{}, &StageError{Completed: "comment", Failed: "status update", Err: err}
	}
	return req, nil
}

func (s *TaskService) SaveEditedRequest(ctx context.Context, requestID string, fields models.RequestFields, agentID string) (models.Request, error) {
	if blank(requestID) || blank(agentID) {
		return models.Request{}, models.ValidationError{Message: "Request ID and User ID are required"}
	}
	if fields.Empty() {
		return models.Request{}, models.ValidationError{Message: "No fields to update"}
	}
	req, err := s.Backend.UpdateRequestData(ctx, requestID, fields, agentID)
	if err != nil {
		s.Logger.Warn().Err(err).Str("request_id", requestID).Msg("request edit failed")
		return models.Request{}, err
	}
	return req, nil
}

// AutoReturnTask puts a stale claim back in the queue. It does not check the
// current status; on a request that is already new it still issues the
// update and the assignment stays empty.
func (s *TaskService) AutoReturnTask(ctx context.Context, requestID, agentID string) (models.Request, error) {
	if blank(requestID) || blank(agentID) {
		return models.Request{}, models.ValidationError{Message: "Request ID and User ID are required"}
	}
	return s.UpdateStatus(ctx, requestID, models.StatusNew, agentID, models.StatusExtra{Details: AutoReturnDetails})
}

// ReturnStale is AutoReturnTask for the watchdog: the request is only
// returned if it is still assigned with an assigned_at before cutoff.
// Otherwise it fails with models.ErrClaimChanged.
func (s *TaskService) ReturnStale(ctx context.Context, requestID, actorID string, cutoff time.Time) (models.Request, error) {
	if blank(requestID) || blank(actorID) {
		return models.Request{}, models.ValidationError{Message: "Request ID and User ID are required"}
	}
	return s.UpdateStatus(ctx, requestID, models.StatusNew, actorID, models.StatusExtra{Details: AutoReturnDetails, AssignedBefore: &cutoff})
}

// AddComment attaches a free-form comment to a request.
func (s *TaskService) AddComment(ctx context.Context, requestID, text, agentID string, sendBackReason bool) (models.Comment, error) {
	if blank(requestID) || blank(text) || blank(agentID) {
		return models.Comment{}, models.ValidationError{Message: "Request ID, comment text, and User ID are required"}
	}
	c, err := s.Backend.AddComment(ctx, requestID, agentID, text, sendBackReason)
	if err != nil {
		s.Logger.Warn().Err(err).Str("request_id", requestID).Msg("add comment failed")
		return models.Comment{}, err
	}
	return c, nil
}

// AutoAssignRequest claims a request on behalf of the next available agent
// when its service type has auto-assignment enabled.
func (s *TaskService) AutoAssignRequest(ctx context.Context, requestID, actorID string) (models.Request, error) {
	if blank(requestID) || blank(actorID) {
		return models.Request{}, models.ValidationError{Message: "Request ID and User ID are required"}
	}
	if s.Rules == nil {
		return models.Request{}, models.ErrAutoAssignDisabled
	}
	req, err := s.Backend.GetRequest(ctx, requestID)
	if err != nil {
		return models.Request{}, err
	}
	if !s.Rules.IsAutoAssignEnabled(ctx, req.ServiceType) {
		return models.Request{}, models.ErrAutoAssignDisabled
	}
	agentID, ok, err := s.Rules.GetNextAvailableAgent(ctx, req.ServiceType)
	if err != nil {
		return models.Request{}, err
	}
	if !ok {
		return models.Request{}, models.ErrNoAvailableAgent
	}
	s.Logger.Info().Str("request_id", requestID).Str("agent_id", agentID).Str("actor_id", actorID).Msg("auto-assigning request")
	return s.ClaimRequest(ctx, requestID, agentID)
}

func (s *TaskService) observe(status models.Status) {
	if s.Metrics != nil {
		s.Metrics.ObserveTransition(status)
	}
}

func blank(v string) bool {
	return strings.TrimSpace(v) == ""
}
