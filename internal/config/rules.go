package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/secops-portal/backend/internal/models"
)

type rulesFile struct {
	Rules []models.RoutingRule `yaml:"routing_rules"`
}

// LoadRoutingRules reads the routing rule seed file. An empty path yields no
// rules.
func LoadRoutingRules(path string) ([]models.RoutingRule, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routing rules: %w", err)
	}
	return ParseRoutingRules(b)
}

func ParseRoutingRules(b []byte) ([]models.RoutingRule, error) {
	var f rulesFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse routing rules: %w", err)
	}
	for i, r := range f.Rules {
		if r.ServiceType == "" {
			return nil, fmt.Errorf("routing rule %d: service_type is required", i)
		}
	}
	return f.Rules, nil
}
