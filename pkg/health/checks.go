package health

import (
	"os"
	"path/filepath"

	"github.com/ao/serengeti/pkg/cluster"
	"github.com/ao/serengeti/pkg/persistence"
)

// StorageCheck verifies the data path accepts writes
func StorageCheck(dataPath string) CheckFunc {
	return func() Check {
		probe := filepath.Join(dataPath, ".health")
		if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
			return Check{Status: StatusDown, Message: err.Error()}
		}
		os.Remove(probe)
		return Check{Status: StatusUp, Message: "writable"}
	}
}

// ClusterCheck reports DEGRADED when the node has no network and
// therefore cannot see or serve peers.
func ClusterCheck(membership *cluster.Membership) CheckFunc {
	return func() Check {
		coordinatorID := ""
		if coord, ok := membership.Coordinator(); ok {
			coordinatorID = coord.ID
		}
		check := Check{
			Details: map[string]any{
				"size":        membership.Size(),
				"coordinator": coordinatorID,
			},
		}
		if !membership.Online() {
			check.Status = StatusDegraded
			check.Message = "no reachable network, running standalone"
			return check
		}
		check.Status = StatusUp
		return check
	}
}

// SchedulerCheck degrades when persistence passes keep failing and
// goes down when nothing has ever been persisted but errors exist.
func SchedulerCheck(sched *persistence.Scheduler) CheckFunc {
	return func() Check {
		st := sched.Status()
		check := Check{
			Details: map[string]any{
				"passes": st.Passes,
				"errors": st.Errors,
			},
		}
		switch {
		case st.Errors == 0:
			check.Status = StatusUp
		case st.Passes == 0:
			check.Status = StatusDown
			check.Message = st.LastError
		default:
			check.Status = StatusDegraded
			check.Message = st.LastError
		}
		return check
	}
}
