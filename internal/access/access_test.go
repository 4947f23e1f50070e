package access

import (
	"testing"

	"keepsake/api/internal/store"
)

func TestResolve(t *testing.T) {
	scrapbook := store.Scrapbook{ID: "sb_1", OwnerID: "usr_owner"}
	public := scrapbook
	public.IsPublic = true

	editor := &store.Collaborator{ScrapbookID: "sb_1", UserID: "usr_editor", Role: "editor"}
	viewer := &store.Collaborator{ScrapbookID: "sb_1", UserID: "usr_viewer", Role: "viewer"}

	cases := []struct {
		name      string
		scrapbook store.Scrapbook
		collab    *store.Collaborator
		callerID  string
		want      Access
	}{
		{
			name:      "owner has full access",
			scrapbook: scrapbook,
			callerID:  "usr_owner",
			want:      Access{IsOwner: true, CanRead: true, CanEdit: true},
		},
		{
			name:      "editor collaborator can edit",
			scrapbook: scrapbook,
			collab:    editor,
			callerID:  "usr_editor",
			want:      Access{IsCollaborator: true, Role: RoleEditor, CanRead: true, CanEdit: true},
		},
		{
			name:      "viewer collaborator reads only",
			scrapbook: scrapbook,
			collab:    viewer,
			callerID:  "usr_viewer",
			want:      Access{IsCollaborator: true, Role: RoleViewer, CanRead: true},
		},
		{
			name:      "stranger sees nothing on private",
			scrapbook: scrapbook,
			callerID:  "usr_stranger",
			want:      Access{},
		},
		{
			name:      "stranger reads public",
			scrapbook: public,
			callerID:  "usr_stranger",
			want:      Access{CanRead: true},
		},
		{
			name:      "anonymous reads public but never edits",
			scrapbook: public,
			callerID:  "",
			want:      Access{CanRead: true},
		},
		{
			name:      "anonymous sees nothing on private",
			scrapbook: scrapbook,
			callerID:  "",
			want:      Access{},
		},
		{
			name:      "unknown role degrades to viewer",
			scrapbook: scrapbook,
			collab:    &store.Collaborator{ScrapbookID: "sb_1", UserID: "usr_weird", Role: "admin"},
			callerID:  "usr_weird",
			want:      Access{IsCollaborator: true, Role: RoleViewer, CanRead: true},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Resolve(tc.scrapbook, tc.collab, tc.callerID)
			if got != tc.want {
				t.Fatalf("Resolve() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestValidRole(t *testing.T) {
	if !ValidRole("editor") || !ValidRole("viewer") {
		t.Fatal("editor and viewer must be valid roles")
	}
	if ValidRole("owner") || ValidRole("") {
		t.Fatal("owner and empty must not be valid roles")
	}
}
