package client

import (
	"context"
	"net/http"

	"github.com/secops-portal/backend/internal/models"
)

const tasksPath = "/security-services/tasks"
const requestsPath = "/security-services/requests"

func (c *Client) listRequests(ctx context.Context, queue, agentID string) ([]models.Request, error) {
	raw, err := c.do(ctx, http.MethodGet, tasksPath+"/"+queue+"/"+escape(agentID), nil)
	if err != nil {
		return nil, err
	}
	return CoerceRequests(raw), nil
}

func (c *Client) AvailableRequests(ctx context.Context, agentID string) ([]models.Request, error) {
	return c.listRequests(ctx, "available", agentID)
}

func (c *Client) AssignedRequests(ctx context.Context, agentID string) ([]models.Request, error) {
	return c.listRequests(ctx, "assigned", agentID)
}

func (c *Client) SubmittedRequests(ctx context.Context, agentID string) ([]models.Request, error) {
	return c.listRequests(ctx, "submitted", agentID)
}

func (c *Client) SentBackRequests(ctx context.Context, agentID string) ([]models.Request, error) {
	return c.listRequests(ctx, "sent-back", agentID)
}

func (c *Client) request(ctx context.Context, method, path string, body any) (models.Request, error) {
	raw, err := c.do(ctx, method, path, body)
	if err != nil {
		return models.Request{}, err
	}
	var r models.Request
	if err := decodeData(raw, &r); err != nil {
		return models.Request{}, err
	}
	if r.Comments == nil {
		r.Comments = []models.Comment{}
	}
	return r, nil
}

func (c *Client) GetRequest(ctx context.Context, requestID string) (models.Request, error) {
	return c.request(ctx, http.MethodGet, requestsPath+"/"+escape(requestID), nil)
}

type userBody struct {
	UserID string `json:"user_id"`
}

// ClaimRequest always reports a claim as new: the server answers a repeated
// claim by the holder with the same response as a fresh one.
func (c *Client) ClaimRequest(ctx context.Context, requestID, agentID string) (models.Request, bool, error) {
	req, err := c.request(ctx, http.MethodPost, requestsPath+"/"+escape(requestID)+"/claim", userBody{UserID: agentID})
	if err != nil {
		return models.Request{}, false, err
	}
	return req, true, nil
}

type statusBody struct {
	Status     models.Status `json:"status"`
	UserID     string        `json:"user_id"`
	AssignedTo *string       `json:"assigned_to,omitempty"`
	Details    string        `json:"details,omitempty"`
}

func (c *Client) UpdateRequestStatus(ctx context.Context, requestID string, status models.Status, agentID string, extra models.StatusExtra) (models.Request, error) {
	body := statusBody{Status: status, UserID: agentID, AssignedTo: extra.AssignedTo, Details: extra.Details}
	return c.request(ctx, http.MethodPut, requestsPath+"/"+escape(requestID)+"/status", body)
}

type commentBody struct {
	UserID           string `json:"user_id"`
	Text             string `json:"text"`
	IsSendBackReason bool   `json:"is_send_back_reason"`
}

func (c *Client) AddComment(ctx context.Context, requestID, agentID, text string, sendBackReason bool) (models.Comment, error) {
	raw, err := c.do(ctx, http.MethodPost, requestsPath+"/"+escape(requestID)+"/comments", commentBody{
		UserID:           agentID,
		Text:             text,
		IsSendBackReason: sendBackReason,
	})
	if err != nil {
		return models.Comment{}, err
	}
	var comment models.Comment
	if err := decodeData(raw, &comment); err != nil {
		return models.Comment{}, err
	}
	return comment, nil
}

type editBody struct {
	UserID string `json:"user_id"`
	models.RequestFields
}

func (c *Client) UpdateRequestData(ctx context.Context, requestID string, fields models.RequestFields, agentID string) (models.Request, error) {
	return c.request(ctx, http.MethodPatch, requestsPath+"/"+escape(requestID), editBody{UserID: agentID, RequestFields: fields})
}

func (c *Client) RequestHistory(ctx context.Context, requestID string) ([]models.HistoryEntry, error) {
	raw, err := c.do(ctx, http.MethodGet, requestsPath+"/"+escape(requestID)+"/history", nil)
	if err != nil {
		return nil, err
	}
	out := []models.HistoryEntry{}
	if err := decodeData(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
