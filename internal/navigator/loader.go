package navigator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadRoutineFile reads a routine definition from a JSON or YAML file. A
// .bpmn or .xml file is wrapped as a BPMN routine whose version is "1".
func LoadRoutineFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routine: %w", err)
	}

	var cfg map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bpmn", ".xml":
		id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		return map[string]any{
			"id":        id,
			"__version": "1",
			"graph": map[string]any{
				"__type": TypeBPMN,
				"schema": map[string]any{"__format": "xml", "data": string(data)},
			},
		}, nil
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse routine: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse routine: %w", err)
		}
	}
	if cfg == nil {
		return nil, fmt.Errorf("parse routine: empty document")
	}
	if v, ok := cfg["__version"]; ok && v != nil {
		if _, isString := v.(string); !isString {
			cfg["__version"] = fmt.Sprint(v)
		}
	}
	return cfg, nil
}
