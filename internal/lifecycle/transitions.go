package lifecycle

import "hkms/internal/models"

var sessionTransitions = map[string][]string{
	"pause":    {models.SessionActive},
	"resume":   {models.SessionPaused},
	"complete": {models.SessionActive, models.SessionPaused},
}

// ValidSessionAction reports whether action may be applied to a session in
// status fromStatus.
func ValidSessionAction(action, fromStatus string) bool {
	allowed, ok := sessionTransitions[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// approvalSources are the statuses a room may be approved from.
var approvalSources = []string{models.StatusInspection, models.StatusClean, models.StatusApproved}

// ValidRoomTransition decides whether a supervisory caller may move a room
// from one status to another. Both sides must already be known statuses.
func ValidRoomTransition(from, to string) bool {
	if to != models.StatusApproved {
		return true
	}
	for _, status := range approvalSources {
		if status == from {
			return true
		}
	}
	return false
}

// canStartCleaning: a guest-occupied room cannot be cleaned.
func canStartCleaning(status string) bool {
	return status != models.StatusOccupied
}

// canFlagForInspection: problem reports leave occupied rooms where they are.
func canFlagForInspection(status string) bool {
	return status != models.StatusOccupied
}

// allowedWithOpenSession: while a session is active or paused the room may
// only be (re)marked as cleaning or flagged for inspection.
func allowedWithOpenSession(target string) bool {
	return target == models.StatusCleaning || target == models.StatusInspection
}
