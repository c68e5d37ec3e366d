package rbac

import "testing"

func TestGeneratePermissionCodeStable(t *testing.T) {
	first := GeneratePermissionCode(PermissionAction, "/api/v1/user/{id}", "DELETE")
	second := GeneratePermissionCode(PermissionAction, "/api/v1/user/{id}", "DELETE")
	if first != second {
		t.Fatalf("code generation not stable: %q vs %q", first, second)
	}
	if first != "action.user.id.delete" {
		t.Fatalf("unexpected code %q", first)
	}
}

func TestGeneratePermissionCodeShapes(t *testing.T) {
	cases := []struct {
		path   string
		method string
		want   string
	}{
		{"/api/v1/role/list", "GET", "action.role.list.get"},
		{"/api/v1/base/access_token", "POST", "action.base.access_token.post"},
		{"/api/v1/auditlog/batch_delete", "POST", "action.auditlog.batch_delete.post"},
		{"/api/v1/user/{user_id}/roles", "POST", "action.user.user_id.roles.post"},
	}
	for _, tc := range cases {
		got := GeneratePermissionCode(PermissionAction, tc.path, tc.method)
		if got != tc.want {
			t.Fatalf("%s %s: expected %q, got %q", tc.method, tc.path, tc.want, got)
		}
	}
}

func TestGeneratePermissionCodeNonAction(t *testing.T) {
	if got := GeneratePermissionCode(PermissionModule, "/api/v1/user/list", "GET"); got != "" {
		t.Fatalf("expected empty code for non-action type, got %q", got)
	}
}

func TestModuleFromPath(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/api/v1/user/list", "user"},
		{"/api/v1/auditlog/delete", "auditlog"},
		{"/api/v1/Role/create", "role"},
		{"/api/v1/", "base"},
		{"/healthz", "healthz"},
	}
	for _, tc := range cases {
		if got := ModuleFromPath(tc.path); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.path, tc.want, got)
		}
	}
}

func TestTierCodes(t *testing.T) {
	if got := ModuleCode("system"); got != "menu.system" {
		t.Fatalf("unexpected module code %q", got)
	}
	if got := FeatureCode("system", "user"); got != "submenu.system.user" {
		t.Fatalf("unexpected feature code %q", got)
	}
}
