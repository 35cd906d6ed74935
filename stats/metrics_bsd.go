//go:build dragonfly || freebsd

package stats

// getAdjustedLoad returns the 1-minute load average adjusted for I/O wait.
//
// Note: This is a stub implementation for BSD systems. The full implementation
// requires proper sysctl bindings for:
// - Standard load average via C.getloadavg() or sysctl
// - vm.vmtotal.t_pw (processes waiting on page faults) for I/O adjustment
//
// TODO: Implement using cgo or proper syscall bindings when available
func getAdjustedLoad() (float64, error) {
	// Stub: return zero
	// Real implementation needs:
	// 1. Call getloadavg() to get standard load
	// 2. Query vm.vmtotal sysctl to get t_pw
	// 3. Return loadavg[0] + t_pw
	return 0.0, nil
}

// getSwapUsage returns swap usage as a percentage (0-100).
// Returns 0 if no swap is configured.
//
// Note: This is a stub implementation. The full implementation requires:
// - Querying vm.swap_info sysctl (array of swap devices)
// - Or using kvm_getswapinfo() via cgo
// - Summing ksw_used / ksw_total across all devices
//
// TODO: Implement proper swap percentage calculation
func getSwapUsage() (int, error) {
	// Stub: return zero
	return 0, nil
}
