package accessor

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is matched by every *UnauthorizedError.
var ErrUnauthorized = errors.New("unauthorized")

// Machine-readable unauthorized codes.
const (
	CodeNoAgentID            = "NoAgentId"
	CodePrivateSwarm         = "PrivateSwarm"
	CodeAgentNotInSwarm      = "AgentNotInSwarm"
	CodeNoResourcePermission = "NoResourcePermission"
	CodeAccessDenied         = "AccessDenied"
)

// UnauthorizedError is returned when a data access is refused.
type UnauthorizedError struct {
	Code    string
	AgentID string
	Path    string
	Reason  string
}

func (e *UnauthorizedError) Error() string {
	msg := fmt.Sprintf("unauthorized (%s): agent %q path %q", e.Code, e.AgentID, e.Path)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *UnauthorizedError) Is(target error) bool {
	return target == ErrUnauthorized
}

// UnauthorizedCode returns the code carried by err, or "" when err is not an
// unauthorized failure.
func UnauthorizedCode(err error) string {
	var ue *UnauthorizedError
	if errors.As(err, &ue) {
		return ue.Code
	}
	return ""
}
