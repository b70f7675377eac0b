package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kwant-dbg/codejudge/internal/model"
)

// cgroupRoot is where this worker creates one throwaway cgroup per
// sandboxed run for best-effort CPU/memory accounting. Accounting is
// attached to logs only; it never feeds back into
// classification, so any failure here is swallowed rather than
// propagated.
const cgroupRoot = "/sys/fs/cgroup/codejudge"

// attachCgroup creates a fresh cgroup for one sandboxed run and adds pid
// to it. It returns a cleanup func that removes the cgroup; it is safe to
// call even when attach itself failed (it is a no-op when the cgroup
// directory could not be created).
func attachCgroup(pid int) (path string, cleanup func(), ok bool) {
	path = filepath.Join(cgroupRoot, fmt.Sprintf("run-%d", pid))
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", func() {}, false
	}
	if err := os.WriteFile(filepath.Join(path, "cgroup.procs"), []byte(strconv.Itoa(pid)), 0644); err != nil {
		return path, func() { _ = os.RemoveAll(path) }, false
	}
	return path, func() { _ = os.RemoveAll(path) }, true
}

// readCgroupUsage reports best-effort CPU/memory usage for the just-
// reaped process. Because the worker attaches the child to a dedicated
// cgroup at start time, usage can still be read for a short window after
// the process exits, before the cgroup is torn down.
func readCgroupUsage(proc *os.Process) model.ResourceUsage {
	if proc == nil {
		return model.ResourceUsage{}
	}
	path := filepath.Join(cgroupRoot, fmt.Sprintf("run-%d", proc.Pid))
	defer os.RemoveAll(path)

	cpuStat, err := os.ReadFile(filepath.Join(path, "cpu.stat"))
	if err != nil {
		return model.ResourceUsage{}
	}
	var cpuUsec int64
	for _, line := range strings.Split(string(cpuStat), "\n") {
		if strings.HasPrefix(line, "usage_usec ") {
			fmt.Sscanf(line, "usage_usec %d", &cpuUsec)
		}
	}

	memPeakData, err := os.ReadFile(filepath.Join(path, "memory.peak"))
	if err != nil {
		memPeakData, err = os.ReadFile(filepath.Join(path, "memory.current"))
		if err != nil {
			return model.ResourceUsage{CPUMicros: cpuUsec, Available: true}
		}
	}
	memPeak, err := strconv.ParseInt(strings.TrimSpace(string(memPeakData)), 10, 64)
	if err != nil {
		return model.ResourceUsage{CPUMicros: cpuUsec, Available: true}
	}

	return model.ResourceUsage{CPUMicros: cpuUsec, PeakMemBytes: memPeak, Available: true}
}
