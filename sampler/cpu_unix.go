//go:build unix

package sampler

import "golang.org/x/sys/unix"

type processCPU struct{}

// CPUTime returns the user and system time of the process.
func (processCPU) CPUTime() (int64, bool) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0, false
	}
	return ru.Utime.Nano() + ru.Stime.Nano(), true
}
