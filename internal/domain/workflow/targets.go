package workflow

import (
	"sort"

	"github.com/garyjia/stock-approval/internal/domain/entity"
)

// ForwardTargets returns the approvers a record may be forwarded to: every approver
// that can approve or finalize, minus the current approver, ordered by level then id.
// Whether the recipient may forward again is checked when they act, not here.
func ForwardTargets(approvers []*entity.WorkflowApprover, currentApproverID string) []*entity.WorkflowApprover {
	targets := make([]*entity.WorkflowApprover, 0, len(approvers))
	for _, a := range approvers {
		if a.UserID == currentApproverID || !a.CanReceiveForward() {
			continue
		}
		targets = append(targets, a)
	}

	sort.SliceStable(targets, func(i, j int) bool {
		if targets[i].ApproverLevel != targets[j].ApproverLevel {
			return targets[i].ApproverLevel < targets[j].ApproverLevel
		}
		return targets[i].ID < targets[j].ID
	})

	return targets
}

// ContainsTarget reports whether userID is among targets
func ContainsTarget(targets []*entity.WorkflowApprover, userID string) bool {
	return entity.FindApprover(targets, userID) != nil
}
