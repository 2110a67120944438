package client

import (
	"context"
	"net/http"

	"github.com/secops-portal/backend/internal/models"
)

const rulesPath = "/security-services/routing-rules"

func (c *Client) ListRoutingRules(ctx context.Context) ([]models.RoutingRule, error) {
	raw, err := c.do(ctx, http.MethodGet, rulesPath, nil)
	if err != nil {
		return nil, err
	}
	out := []models.RoutingRule{}
	if err := decodeData(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetRoutingRule(ctx context.Context, serviceType string) (*models.RoutingRule, error) {
	raw, err := c.do(ctx, http.MethodGet, rulesPath+"/"+escape(serviceType), nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if isNull(raw) {
		return nil, nil
	}
	var rule models.RoutingRule
	if err := decodeData(raw, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

func (c *Client) SaveRoutingRule(ctx context.Context, rule models.RoutingRule) (models.RoutingRule, error) {
	raw, err := c.do(ctx, http.MethodPost, rulesPath, rule)
	if err != nil {
		return models.RoutingRule{}, err
	}
	var saved models.RoutingRule
	if err := decodeData(raw, &saved); err != nil {
		return models.RoutingRule{}, err
	}
	return saved, nil
}

func (c *Client) DeleteRoutingRule(ctx context.Context, serviceType string) error {
	_, err := c.do(ctx, http.MethodDelete, rulesPath+"/"+escape(serviceType), nil)
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

type nextAgent struct {
	AgentID string `json:"agent_id"`
}

func (c *Client) NextAvailableAgent(ctx context.Context, serviceType string) (string, bool, error) {
	raw, err := c.do(ctx, http.MethodGet, rulesPath+"/"+escape(serviceType)+"/next-agent", nil)
	if err != nil {
		return "", false, err
	}
	if isNull(raw) {
		return "", false, nil
	}
	var next nextAgent
	if err := decodeData(raw, &next); err != nil {
		return "", false, err
	}
	if next.AgentID == "" {
		return "", false, errEmptyAgent
	}
	return next.AgentID, true, nil
}

func isNotFound(err error) bool {
	remote, ok := err.(*RemoteError)
	return ok && remote.Code == "NOT_FOUND"
}
