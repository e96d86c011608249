package models

// PendingKind names the operation a workspace view is busy with.
type PendingKind string

const (
	PendingMove     PendingKind = "move"
	PendingNote     PendingKind = "note"
	PendingPriority PendingKind = "priority"
	PendingTag      PendingKind = "tag"
	PendingShare    PendingKind = "share"
	PendingExport   PendingKind = "export"
	PendingNotice   PendingKind = "notice"
)

// PendingAction is an in-flight or modal-pending operation of a workspace view.
type PendingAction struct {
	Kind      PendingKind `json:"kind"`
	TargetIDs []int64     `json:"target_ids"`
	Payload   any         `json:"payload,omitempty"`
	Title     string      `json:"title,omitempty"`
	Message   string      `json:"message,omitempty"`
	URL       string      `json:"url,omitempty"`
}

// Role gates what a workspace member may change.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleRecruiter Role = "recruiter"
	RoleViewer    Role = "viewer"
)

// CanMutate reports whether the role may move candidates and run bulk actions.
func (r Role) CanMutate() bool {
	return r == RoleAdmin || r == RoleRecruiter
}

// Privileged reports whether the role may edit locked stages.
func (r Role) Privileged() bool {
	return r == RoleAdmin
}

// ParseRole defaults to recruiter for unknown input.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleAdmin, RoleViewer:
		return Role(s)
	}
	return RoleRecruiter
}
