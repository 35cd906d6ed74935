package stats

// GetLoadAverage returns the current adjusted load average (1-minute,
// weighted by processes waiting on page faults where the platform backend
// supports it). Used by both the dynamic worker controller and the
// per-phase watchdog's load-scaled timeout.
func GetLoadAverage() (float64, error) {
	return getAdjustedLoad()
}

// GetSwapUsagePct returns current swap usage as a percentage (0-100).
func GetSwapUsagePct() (int, error) {
	return getSwapUsage()
}
