package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "viewer read", role: RoleViewer, action: ActionRead, allow: true},
		{name: "viewer upload", role: RoleViewer, action: ActionUpload, allow: false},
		{name: "editor create", role: RoleEditor, action: ActionCreate, allow: true},
		{name: "editor upload", role: RoleEditor, action: ActionUpload, allow: true},
		{name: "editor delete", role: RoleEditor, action: ActionDelete, allow: false},
		{name: "editor sweep", role: RoleEditor, action: ActionSweep, allow: false},
		{name: "admin delete", role: RoleAdmin, action: ActionDelete, allow: true},
		{name: "admin sweep", role: RoleAdmin, action: ActionSweep, allow: true},
		{name: "unknown role", role: Role("guest"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("editor") != RoleEditor {
		t.Fatal("editor not kept")
	}
	if Normalize("commenter") != RoleViewer || Normalize("") != RoleViewer {
		t.Fatal("unknown roles must fall back to viewer")
	}
}
