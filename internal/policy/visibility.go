package policy

import "slices"

// Visibility controls who may see a swarm's shared state.
type Visibility string

const (
	VisibilityPublic     Visibility = "public"
	VisibilityRestricted Visibility = "restricted"
	VisibilityPrivate    Visibility = "private"
)

// Operation is the kind of access being checked against visibility.
type Operation string

const (
	OperationRead  Operation = "read"
	OperationWrite Operation = "write"
)

// VisibilityAllows reports whether requester may perform op under the given
// visibility and ACL. Private swarms admit ACL members only. Restricted swarms
// admit every read; writes require ACL membership.
func VisibilityAllows(v Visibility, acl []string, requester string, op Operation) bool {
	switch v {
	case VisibilityPrivate:
		return slices.Contains(acl, requester)
	case VisibilityRestricted:
		if op == OperationRead {
			return true
		}
		return slices.Contains(acl, requester)
	default:
		return true
	}
}
