package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/secops-portal/backend/internal/assignment"
	"github.com/secops-portal/backend/internal/models"
)

// RoutingService reads and writes routing rules and answers eligibility
// questions. Mutations and listings return their errors; the eligibility
// queries fail closed so a lookup failure never grants access or routes work.
type RoutingService struct {
	Backend RuleBackend
	Logger  zerolog.Logger
}

func (s *RoutingService) GetRoutingRules(ctx context.Context) ([]models.RoutingRule, error) {
	rules, err := s.Backend.ListRoutingRules(ctx)
	if err != nil {
		return nil, err
	}
	if rules == nil {
		rules = []models.RoutingRule{}
	}
	return rules, nil
}

func (s *RoutingService) GetRoutingRuleByServiceType(ctx context.Context, serviceType string) (*models.RoutingRule, error) {
	if blank(serviceType) {
		return nil, models.ValidationError{Message: "Service type is required"}
	}
	return s.Backend.GetRoutingRule(ctx, serviceType)
}

func (s *RoutingService) SaveRoutingRule(ctx context.Context, rule models.RoutingRule) (models.RoutingRule, error) {
	if blank(rule.ServiceType) {
		return models.RoutingRule{}, models.ValidationError{Message: "Service type is required"}
	}
	rule = assignment.NormalizeRule(rule)
	if rule.Strategy != models.StrategyRoundRobin && rule.Strategy != models.StrategyLeastLoaded {
		return models.RoutingRule{}, models.ValidationError{Message: "Unknown assignment strategy: " + rule.Strategy}
	}
	saved, err := s.Backend.SaveRoutingRule(ctx, rule)
	if err != nil {
		s.Logger.Error().Err(err).Str("service_type", rule.ServiceType).Msg("failed to save routing rule")
		return models.RoutingRule{}, err
	}
	s.Logger.Info().Str("service_type", saved.ServiceType).Int("users", len(saved.AssignedUsers)).Msg("routing rule saved")
	return saved, nil
}

func (s *RoutingService) DeleteRoutingRule(ctx context.Context, serviceType string) error {
	if blank(serviceType) {
		return models.ValidationError{Message: "Service type is required"}
	}
	if err := s.Backend.DeleteRoutingRule(ctx, serviceType); err != nil {
		s.Logger.Error().Err(err).Str("service_type", serviceType).Msg("failed to delete routing rule")
		return err
	}
	return nil
}

// GetNextAvailableAgent asks the backend for the next agent to receive work of
// serviceType. The selection strategy belongs to the backend.
func (s *RoutingService) GetNextAvailableAgent(ctx context.Context, serviceType string) (string, bool, error) {
	if blank(serviceType) {
		return "", false, models.ValidationError{Message: "Service type is required"}
	}
	return s.Backend.NextAvailableAgent(ctx, serviceType)
}

func (s *RoutingService) IsAutoAssignEnabled(ctx context.Context, serviceType string) bool {
	rule, err := s.lookup(ctx, serviceType)
	if err != nil || rule == nil {
		return false
	}
	return rule.IsActive && rule.AutoAssign
}

func (s *RoutingService) GetAssignedUsers(ctx context.Context, serviceType string) []string {
	rule, err := s.lookup(ctx, serviceType)
	if err != nil || rule == nil {
		return []string{}
	}
	return assignment.NormalizeUsers(rule.AssignedUsers)
}

func (s *RoutingService) IsUserAssigned(ctx context.Context, agentID, serviceType string) bool {
	if blank(agentID) {
		return false
	}
	for _, u := range s.GetAssignedUsers(ctx, serviceType) {
		if u == agentID {
			return true
		}
	}
	return false
}

func (s *RoutingService) lookup(ctx context.Context, serviceType string) (*models.RoutingRule, error) {
	if blank(serviceType) {
		return nil, nil
	}
	rule, err := s.Backend.GetRoutingRule(ctx, serviceType)
	if err != nil {
		s.Logger.Warn().Err(err).Str("service_type", serviceType).Msg("routing rule lookup failed")
		return nil, err
	}
	return rule, nil
}
