// Package config loads the YAML rule file described in spec §6 and builds
// a Rule Store forest per domain. This mirrors the Rust original's
// RateLimitConfig::from_yaml, which tries the common single-domain Envoy
// shape first and falls back to a multi-domain map — a shape the
// distilled spec doesn't mention but the original supports and nothing in
// spec §1's Non-goals excludes.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"hivemind/internal/ruleforest"
	"hivemind/internal/window"
)

type rawRateLimit struct {
	Unit            string `yaml:"unit"`
	RequestsPerUnit uint64 `yaml:"requests_per_unit"`
}

type rawDescriptor struct {
	Key         string          `yaml:"key"`
	Value       *string         `yaml:"value"`
	RateLimit   *rawRateLimit   `yaml:"rate_limit"`
	Descriptors []rawDescriptor `yaml:"descriptors"`
}

type rawDomain struct {
	Domain      string          `yaml:"domain"`
	Descriptors []rawDescriptor `yaml:"descriptors"`
}

type rawMultiDomain struct {
	Domains map[string]rawDomain `yaml:"domains"`
}

// LoadRulesFile reads path and parses it as a rule file.
func LoadRulesFile(path string) (map[string]*ruleforest.Forest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read rule file: %w", err)
	}
	return LoadRules(data)
}

// LoadRules parses YAML rule configuration into one Rule Store forest per
// domain. It tries the single-domain shape from spec §6 first, then the
// multi-domain `domains:` map shape.
func LoadRules(data []byte) (map[string]*ruleforest.Forest, error) {
	var single rawDomain
	if err := yaml.Unmarshal(data, &single); err == nil && single.Domain != "" {
		forest, err := buildForest(single)
		if err != nil {
			return nil, err
		}
		return map[string]*ruleforest.Forest{single.Domain: forest}, nil
	}

	var multi rawMultiDomain
	if err := yaml.Unmarshal(data, &multi); err != nil {
		return nil, fmt.Errorf("config: parse rule file: %w", err)
	}
	if len(multi.Domains) == 0 {
		return nil, fmt.Errorf("config: rule file has no domains")
	}

	forests := make(map[string]*ruleforest.Forest, len(multi.Domains))
	for name, dom := range multi.Domains {
		if dom.Domain == "" {
			dom.Domain = name
		}
		forest, err := buildForest(dom)
		if err != nil {
			return nil, fmt.Errorf("config: domain %q: %w", name, err)
		}
		forests[dom.Domain] = forest
	}
	return forests, nil
}

func buildForest(dom rawDomain) (*ruleforest.Forest, error) {
	specs, err := convertDescriptors(dom.Domain, dom.Descriptors)
	if err != nil {
		return nil, err
	}
	forest, err := ruleforest.Build(dom.Domain, specs)
	if err != nil {
		return nil, fmt.Errorf("config: domain %q: %w", dom.Domain, err)
	}
	return forest, nil
}

func convertDescriptors(domain string, raw []rawDescriptor) ([]ruleforest.NodeSpec, error) {
	specs := make([]ruleforest.NodeSpec, 0, len(raw))
	for _, r := range raw {
		if r.Key == "" {
			return nil, fmt.Errorf("config: domain %q: descriptor missing key", domain)
		}
		spec := ruleforest.NodeSpec{Key: r.Key}
		if r.Value != nil {
			spec.HasValue = true
			spec.Value = *r.Value
		}
		if r.RateLimit != nil {
			unit, ok := window.ParseUnit(r.RateLimit.Unit)
			if !ok {
				return nil, fmt.Errorf("config: domain %q: unknown unit %q for key %q", domain, r.RateLimit.Unit, r.Key)
			}
			spec.HasLimit = true
			spec.Unit = unit
			spec.RequestsPerUnit = r.RateLimit.RequestsPerUnit
		}
		children, err := convertDescriptors(domain, r.Descriptors)
		if err != nil {
			return nil, err
		}
		spec.Children = children
		specs = append(specs, spec)
	}
	return specs, nil
}
