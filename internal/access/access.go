package access

import "keepsake/api/internal/store"

type Role string

const (
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Access is a caller's effective standing on one scrapbook.
type Access struct {
	IsOwner        bool
	IsCollaborator bool
	Role           Role
	CanRead        bool
	CanEdit        bool
}

// Resolve computes the caller's effective access. collab is the caller's
// collaborator row, nil when none exists; callerID may be empty for
// anonymous requests. Owners never have a collaborator row.
func Resolve(scrapbook store.Scrapbook, collab *store.Collaborator, callerID string) Access {
	a := Access{}
	if callerID != "" && callerID == scrapbook.OwnerID {
		a.IsOwner = true
	}
	if !a.IsOwner && collab != nil {
		a.IsCollaborator = true
		a.Role = Normalize(collab.Role)
	}
	a.CanRead = a.IsOwner || a.IsCollaborator || scrapbook.IsPublic
	a.CanEdit = a.IsOwner || (a.IsCollaborator && a.Role == RoleEditor)
	return a
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleEditor, RoleViewer:
		return Role(role)
	default:
		return RoleViewer
	}
}

func ValidRole(role string) bool {
	switch Role(role) {
	case RoleEditor, RoleViewer:
		return true
	default:
		return false
	}
}
