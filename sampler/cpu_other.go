//go:build !unix

package sampler

type processCPU struct{}

// CPUTime is not available on this platform.
func (processCPU) CPUTime() (int64, bool) {
	return 0, false
}
