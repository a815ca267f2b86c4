package policy

import "strings"

// ResourceType is the class of data a grant authorizes.
type ResourceType string

const (
	ResourceBlackboard ResourceType = "blackboard"
	ResourceRoutine    ResourceType = "routine"
	ResourceDocument   ResourceType = "document"
	ResourceTool       ResourceType = "tool"
	ResourceLink       ResourceType = "link"
	ResourceAll        ResourceType = "all"
	ResourceLegacy     ResourceType = "legacy"
)

const (
	PermissionRead  = "read"
	PermissionWrite = "write"

	scopeRead = "read"
)

// ResourceGrant is one entry of an agent's resource list.
type ResourceGrant struct {
	Type        ResourceType `json:"type" yaml:"type"`
	Scope       string       `json:"scope,omitempty" yaml:"scope,omitempty"`
	Permissions []string     `json:"permissions,omitempty" yaml:"permissions,omitempty"`
}

// IsBlanketRead reports whether the grant authorizes reading everything.
func (g ResourceGrant) IsBlanketRead() bool {
	switch g.Type {
	case ResourceAll:
		return true
	case ResourceLegacy:
		return g.Scope == scopeRead
	}
	return false
}

// AllowsRead reports whether the grant's permission list admits reads. An
// empty list is read-only by default.
func (g ResourceGrant) AllowsRead() bool {
	if len(g.Permissions) == 0 {
		return true
	}
	for _, p := range g.Permissions {
		if p == PermissionRead || p == "*" {
			return true
		}
	}
	return false
}

// ResourceTypeForPath maps a data path to the resource type that guards it.
// Anything not matched by a more specific rule is a document.
func ResourceTypeForPath(path string) ResourceType {
	switch {
	case strings.HasPrefix(path, "blackboard"):
		return ResourceBlackboard
	case strings.HasPrefix(path, "subtasks"),
		strings.HasPrefix(path, "records"),
		strings.Contains(path, "swarm.state"),
		strings.Contains(path, "swarm.resources"):
		return ResourceRoutine
	case hasToolSegment(path):
		return ResourceTool
	case strings.Contains(path, "link"), strings.Contains(path, "url"):
		return ResourceLink
	default:
		return ResourceDocument
	}
}

func hasToolSegment(path string) bool {
	for _, seg := range strings.Split(path, ".") {
		if strings.HasPrefix(seg, "tool") {
			return true
		}
	}
	return false
}

// HasResourceType reports whether grants allow reading the given resource
// type. Grants whose permissions exclude reads never match.
func HasResourceType(grants []ResourceGrant, rt ResourceType) bool {
	for _, g := range grants {
		if !g.AllowsRead() {
			continue
		}
		if g.IsBlanketRead() || g.Type == rt {
			return true
		}
	}
	return false
}

// CanReadBlackboardItem reports whether grants allow reading the blackboard
// item with the given id. Blackboard scopes match item ids exactly; an empty
// scope covers the whole blackboard.
func CanReadBlackboardItem(grants []ResourceGrant, itemID string) bool {
	for _, g := range grants {
		if g.IsBlanketRead() {
			return true
		}
		if g.Type != ResourceBlackboard || !g.AllowsRead() {
			continue
		}
		if g.Scope == "" || g.Scope == itemID {
			return true
		}
	}
	return false
}
