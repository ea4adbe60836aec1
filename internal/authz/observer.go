package authz

import (
	"context"

	"github.com/courseguard/courseguard/internal/audit"
)

// AuditObserver forwards assignment mutations to the audit log.
type AuditObserver struct {
	logger audit.Logger
}

// NewAuditObserver creates an observer backed by an audit logger.
func NewAuditObserver(logger audit.Logger) *AuditObserver {
	return &AuditObserver{logger: logger}
}

func (o *AuditObserver) RoleAssigned(ctx context.Context, assignment *Assignment) {
	o.logger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleAssigned,
		ActorID:  assignment.ActorID,
		Org:      assignment.Scope.Org,
		CourseID: assignment.Scope.Course.String(),
		Role:     assignment.Role,
		Metadata: map[string]any{
			"assignment_id": assignment.ID,
			"granted_by":    assignment.GrantedBy,
		},
	})
}

func (o *AuditObserver) RoleRevoked(ctx context.Context, assignment *Assignment) {
	o.logger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleRevoked,
		ActorID:  assignment.ActorID,
		Org:      assignment.Scope.Org,
		CourseID: assignment.Scope.Course.String(),
		Role:     assignment.Role,
		Metadata: map[string]any{
			"assignment_id": assignment.ID,
		},
	})
}
