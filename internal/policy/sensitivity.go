package policy

import (
	"encoding/json"
	"sort"
	"strings"
)

// SensitivityType classifies a data path. Input is case-insensitive and unknown
// values normalize to SensitivityPublic.
type SensitivityType string

const (
	SensitivityPII         SensitivityType = "PII"
	SensitivityPHI         SensitivityType = "PHI"
	SensitivityFinancial   SensitivityType = "FINANCIAL"
	SensitivityCredential  SensitivityType = "CREDENTIAL"
	SensitivityProprietary SensitivityType = "PROPRIETARY"
	SensitivityPublic      SensitivityType = "PUBLIC"
)

// NormalizeSensitivity maps free-form input onto a known SensitivityType.
func NormalizeSensitivity(raw string) SensitivityType {
	switch t := SensitivityType(strings.ToUpper(strings.TrimSpace(raw))); t {
	case SensitivityPII, SensitivityPHI, SensitivityFinancial, SensitivityCredential, SensitivityProprietary:
		return t
	default:
		return SensitivityPublic
	}
}

// RequiresSanitization reports whether values of this type must be sanitized
// before they leave the swarm. PUBLIC and PROPRIETARY data pass through.
func (t SensitivityType) RequiresSanitization() bool {
	switch NormalizeSensitivity(string(t)) {
	case SensitivityPublic, SensitivityProprietary:
		return false
	default:
		return true
	}
}

func (t *SensitivityType) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = NormalizeSensitivity(raw)
	return nil
}

func (t *SensitivityType) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	*t = NormalizeSensitivity(raw)
	return nil
}

// SensitivityConfig is the per-pattern entry of a swarm's secrets map.
type SensitivityConfig struct {
	Type     SensitivityType `json:"type" yaml:"type"`
	Sanitize bool            `json:"sanitize" yaml:"sanitize"`
}

// NeedsSanitizing reports whether a read matched by this config must go
// through a sanitizer.
func (c SensitivityConfig) NeedsSanitizing() bool {
	return c.Sanitize && c.Type.RequiresSanitization()
}

// MatchPattern reports whether a configured pattern covers path. A pattern
// covers the exact path and everything nested below it.
func MatchPattern(pattern, path string) bool {
	pattern = strings.TrimSuffix(pattern, ".*")
	if pattern == "" {
		return false
	}
	return path == pattern || strings.HasPrefix(path, pattern+".")
}

// MatchSensitivity returns the most specific pattern in secrets covering path.
func MatchSensitivity(secrets map[string]SensitivityConfig, path string) (string, SensitivityConfig, bool) {
	if len(secrets) == 0 {
		return "", SensitivityConfig{}, false
	}
	patterns := make([]string, 0, len(secrets))
	for p := range secrets {
		if MatchPattern(p, path) {
			patterns = append(patterns, p)
		}
	}
	if len(patterns) == 0 {
		return "", SensitivityConfig{}, false
	}
	sort.Slice(patterns, func(i, j int) bool {
		if len(patterns[i]) != len(patterns[j]) {
			return len(patterns[i]) > len(patterns[j])
		}
		return patterns[i] < patterns[j]
	})
	return patterns[0], secrets[patterns[0]], true
}

// IsSensitivePath reports whether any configured pattern covers path.
func IsSensitivePath(secrets map[string]SensitivityConfig, path string) bool {
	_, _, ok := MatchSensitivity(secrets, path)
	return ok
}
