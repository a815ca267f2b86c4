package policy

import (
	"encoding/json"
	"testing"
)

func TestNormalizeSensitivity(t *testing.T) {
	cases := map[string]SensitivityType{
		"pii":         SensitivityPII,
		"PHI":         SensitivityPHI,
		" Financial ": SensitivityFinancial,
		"credential":  SensitivityCredential,
		"proprietary": SensitivityProprietary,
		"public":      SensitivityPublic,
		"top-secret":  SensitivityPublic,
		"":            SensitivityPublic,
	}
	for in, want := range cases {
		if got := NormalizeSensitivity(in); got != want {
			t.Errorf("NormalizeSensitivity(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestRequiresSanitization(t *testing.T) {
	for _, st := range []SensitivityType{SensitivityPII, SensitivityPHI, SensitivityFinancial, SensitivityCredential} {
		if !st.RequiresSanitization() {
			t.Errorf("expected %s to require sanitization", st)
		}
	}
	for _, st := range []SensitivityType{SensitivityPublic, SensitivityProprietary, "unknown"} {
		if st.RequiresSanitization() {
			t.Errorf("expected %s not to require sanitization", st)
		}
	}
}

func TestSensitivityConfigUnmarshal(t *testing.T) {
	var secrets map[string]SensitivityConfig
	raw := `{"blackboard.apiKey":{"type":"credential","sanitize":true},"goal":{"type":"bogus"}}`
	if err := json.Unmarshal([]byte(raw), &secrets); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if secrets["blackboard.apiKey"].Type != SensitivityCredential {
		t.Errorf("expected CREDENTIAL, got %s", secrets["blackboard.apiKey"].Type)
	}
	if !secrets["blackboard.apiKey"].NeedsSanitizing() {
		t.Error("expected credential config to need sanitizing")
	}
	if secrets["goal"].Type != SensitivityPublic {
		t.Errorf("expected unknown type to normalize to PUBLIC, got %s", secrets["goal"].Type)
	}
}

func TestMatchSensitivity(t *testing.T) {
	secrets := map[string]SensitivityConfig{
		"blackboard":        {Type: SensitivityProprietary},
		"blackboard.apiKey": {Type: SensitivityCredential},
		"records.*":         {Type: SensitivityPII},
	}

	pattern, cfg, ok := MatchSensitivity(secrets, "blackboard.apiKey")
	if !ok || pattern != "blackboard.apiKey" || cfg.Type != SensitivityCredential {
		t.Fatalf("expected most specific match, got %q %+v %v", pattern, cfg, ok)
	}
	if _, cfg, _ := MatchSensitivity(secrets, "blackboard.notes"); cfg.Type != SensitivityProprietary {
		t.Errorf("expected parent pattern to cover child path, got %s", cfg.Type)
	}
	if !IsSensitivePath(secrets, "records.r1.output") {
		t.Error("expected records.* to cover nested record path")
	}
	if IsSensitivePath(secrets, "blackboardish") {
		t.Error("pattern must not match on a bare string prefix")
	}
	if IsSensitivePath(nil, "goal") {
		t.Error("expected no match with empty secrets")
	}
}

func TestResourceTypeForPath(t *testing.T) {
	cases := map[string]ResourceType{
		"blackboard":           ResourceBlackboard,
		"blackboard.findings":  ResourceBlackboard,
		"subtasks":             ResourceRoutine,
		"records.0":            ResourceRoutine,
		"swarm.state":          ResourceRoutine,
		"swarm.resources":      ResourceRoutine,
		"chatConfig.tool.last": ResourceTool,
		"tools.search":         ResourceTool,
		"meta.url":             ResourceLink,
		"sources.link":         ResourceLink,
		"goal":                 ResourceDocument,
		"stats":                ResourceDocument,
		"swarm.id":             ResourceDocument,
		"swarm.agents":         ResourceDocument,
	}
	for path, want := range cases {
		if got := ResourceTypeForPath(path); got != want {
			t.Errorf("ResourceTypeForPath(%q) = %s, want %s", path, got, want)
		}
	}
}

func TestGrants(t *testing.T) {
	if !HasResourceType([]ResourceGrant{{Type: ResourceAll}}, ResourceTool) {
		t.Error("expected all grant to cover tool")
	}
	if !HasResourceType([]ResourceGrant{{Type: ResourceLegacy, Scope: "read"}}, ResourceDocument) {
		t.Error("expected legacy read grant to be blanket")
	}
	if HasResourceType([]ResourceGrant{{Type: ResourceLegacy, Scope: "write"}}, ResourceDocument) {
		t.Error("legacy grant without read scope must not be blanket")
	}
	if HasResourceType([]ResourceGrant{{Type: ResourceBlackboard}}, ResourceDocument) {
		t.Error("blackboard grant must not cover documents")
	}
	if HasResourceType([]ResourceGrant{{Type: ResourceBlackboard, Permissions: []string{"write"}}}, ResourceBlackboard) {
		t.Error("write-only grant must not allow reads")
	}
	if HasResourceType([]ResourceGrant{{Type: ResourceAll, Permissions: []string{"write"}}}, ResourceTool) {
		t.Error("write-only blanket grant must not allow reads")
	}
	if !HasResourceType([]ResourceGrant{{Type: ResourceDocument, Permissions: []string{"write", "read"}}}, ResourceDocument) {
		t.Error("expected read permission to be honoured")
	}
}

func TestCanReadBlackboardItem(t *testing.T) {
	exact := []ResourceGrant{{Type: ResourceBlackboard, Scope: "findings", Permissions: []string{"read"}}}
	if !CanReadBlackboardItem(exact, "findings") {
		t.Error("expected exact scope match")
	}
	if CanReadBlackboardItem(exact, "findings_v2") {
		t.Error("exact scope must not match other ids")
	}
	if !CanReadBlackboardItem([]ResourceGrant{{Type: ResourceBlackboard}}, "anything") {
		t.Error("expected unscoped blackboard grant to cover all items")
	}
	if CanReadBlackboardItem([]ResourceGrant{{Type: ResourceBlackboard, Permissions: []string{"write"}}}, "x") {
		t.Error("write-only grant must not allow reads")
	}
	if CanReadBlackboardItem(nil, "x") {
		t.Error("expected no access without grants")
	}
}

func TestVisibilityAllows(t *testing.T) {
	acl := []string{"bot-1"}
	if VisibilityAllows(VisibilityPrivate, acl, "bot-2", OperationRead) {
		t.Error("private swarm must reject non-ACL reader")
	}
	if !VisibilityAllows(VisibilityPrivate, acl, "bot-1", OperationRead) {
		t.Error("private swarm must admit ACL member")
	}
	if !VisibilityAllows(VisibilityRestricted, acl, "bot-2", OperationRead) {
		t.Error("restricted swarm must admit reads")
	}
	if VisibilityAllows(VisibilityRestricted, acl, "bot-2", OperationWrite) {
		t.Error("restricted swarm must reject non-ACL writes")
	}
	if !VisibilityAllows("", nil, "bot-2", OperationWrite) {
		t.Error("unset visibility behaves as public")
	}
}
