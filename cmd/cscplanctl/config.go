package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// runConfig is the request shared by the sample and source commands. It is
// read from an optional JSON file and then overridden by explicitly set flags.
type runConfig struct {
	Instance     string
	Samples      int
	Seed         int64
	Workers      int
	MinimizeBoth bool
	Fractional   bool
	Need         []float64
	Plan         []float64
}

func loadRunConfig(path string) (runConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return runConfig{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return runConfig{}, err
	}

	var cfg runConfig
	if v, ok := asString(raw["instance"]); ok {
		cfg.Instance = v
	}
	if v, ok := asInt(raw["samples"]); ok {
		cfg.Samples = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		cfg.Seed = v
	}
	if v, ok := asInt(raw["workers"]); ok {
		cfg.Workers = v
	}
	if v, ok := asBool(raw["minimize_both"]); ok {
		cfg.MinimizeBoth = v
	}
	if v, ok := asBool(raw["fractional"]); ok {
		cfg.Fractional = v
	}
	if v, ok, err := asFloat64Slice(raw["need"]); err != nil {
		return runConfig{}, fmt.Errorf("need: %w", err)
	} else if ok {
		cfg.Need = v
	}
	if v, ok, err := asFloat64Slice(raw["plan"]); err != nil {
		return runConfig{}, fmt.Errorf("plan: %w", err)
	} else if ok {
		cfg.Plan = v
	}
	return cfg, nil
}

func loadOrDefaultRunConfig(configPath string) (runConfig, error) {
	if configPath == "" {
		return runConfig{}, nil
	}
	cfg, err := loadRunConfig(configPath)
	if err != nil {
		return runConfig{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func overrideFromFlags(cfg *runConfig, set map[string]bool, flagValue map[string]any) error {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "instance":
			cfg.Instance = v.(string)
		case "samples":
			cfg.Samples = v.(int)
		case "seed":
			cfg.Seed = v.(int64)
		case "workers":
			cfg.Workers = v.(int)
		case "minimize-both":
			cfg.MinimizeBoth = v.(bool)
		case "fractional":
			cfg.Fractional = v.(bool)
		case "need", "plan":
			values, err := parseFloatList(v.(string))
			if err != nil {
				return fmt.Errorf("--%s: %w", name, err)
			}
			if name == "need" {
				cfg.Need = values
			} else {
				cfg.Plan = values
			}
		}
	}
	if cfg.Instance == "" {
		cfg.Instance = defaultInstance
	}
	return nil
}

// parseFloatList parses a comma separated list such as "35,25".
func parseFloatList(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", part)
		}
		out = append(out, v)
	}
	return out, nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

func asFloat64Slice(v any) ([]float64, bool, error) {
	if v == nil {
		return nil, false, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, false, fmt.Errorf("expected a list of numbers")
	}
	out := make([]float64, 0, len(items))
	for i, item := range items {
		f, ok := asFloat64(item)
		if !ok {
			return nil, false, fmt.Errorf("item %d is not a number", i)
		}
		out = append(out, f)
	}
	return out, true, nil
}
