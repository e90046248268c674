package health

import "fmt"

// ControlState is what the checks read from the control loop.
type ControlState struct {
	State   string
	Epoch   int64
	Fatal   string
	Helpers map[string]int
}

// ControlCheck is unhealthy once the control loop stopped on a fatal error.
func ControlCheck(get func() ControlState) CheckFunc {
	return func() Check {
		st := get()
		check := Check{
			Details: map[string]any{"state": st.State, "epoch": st.Epoch},
		}
		if st.Fatal != "" {
			check.Status = StatusUnhealthy
			check.Message = st.Fatal
			return check
		}
		check.Status = StatusHealthy
		return check
	}
}

// StateCheck is healthy only while the control loop is in readyState.
func StateCheck(readyState string, get func() ControlState) CheckFunc {
	return func() Check {
		st := get()
		if st.Fatal == "" && st.State == readyState {
			return Check{Status: StatusHealthy, Message: st.State}
		}
		return Check{Status: StatusUnhealthy, Message: "node is " + st.State}
	}
}

// MembershipCheck is degraded while fewer nodes than expected have
// introduced themselves.
func MembershipCheck(expected int, count func() int) CheckFunc {
	return func() Check {
		n := count()
		check := Check{
			Status:  StatusHealthy,
			Details: map[string]any{"nodes": n, "expected": expected},
		}
		if n < expected {
			check.Status = StatusDegraded
			check.Message = fmt.Sprintf("%d of %d nodes present", n, expected)
		}
		return check
	}
}

// HelperCheck lists the running helper processes.
func HelperCheck(get func() ControlState) CheckFunc {
	return func() Check {
		st := get()
		details := make(map[string]any, len(st.Helpers))
		for kind, pid := range st.Helpers {
			details[kind] = pid
		}
		return Check{Status: StatusHealthy, Details: details}
	}
}
