//go:build linux

package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"smartsolution/internal/judge/sandbox"
)

const cpuPeriodUs = 100000

func applyCgroupLimits(cgroupPath string, limits sandbox.Limits) error {
	pidsValue := "max"
	if limits.PIDs > 0 {
		pidsValue = strconv.FormatInt(limits.PIDs, 10)
	}
	if err := writeCgroupValue(cgroupPath, "pids.max", pidsValue); err != nil {
		return err
	}
	if limits.Memory > 0 {
		if err := writeCgroupValue(cgroupPath, "memory.max", strconv.FormatInt(limits.Memory, 10)); err != nil {
			return err
		}
		// Best effort: not every kernel exposes swap accounting.
		_ = writeCgroupValue(cgroupPath, "memory.swap.max", "0")
	}
	if err := writeCgroupValue(cgroupPath, "cpu.max", cpuMaxValue(limits.CPUs)); err != nil {
		return err
	}
	return nil
}

func cpuMaxValue(cpus float64) string {
	if cpus <= 0 {
		return fmt.Sprintf("max %d", cpuPeriodUs)
	}
	quota := int64(cpus * cpuPeriodUs)
	if quota < 1000 {
		quota = 1000
	}
	return fmt.Sprintf("%d %d", quota, cpuPeriodUs)
}

func addProcessToCgroup(cgroupPath string, pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid")
	}
	return writeCgroupValue(cgroupPath, "cgroup.procs", strconv.Itoa(pid))
}

func killCgroup(cgroupPath string) error {
	killPath := filepath.Join(cgroupPath, "cgroup.kill")
	if _, err := os.Stat(killPath); err != nil {
		return err
	}
	return os.WriteFile(killPath, []byte("1"), 0600)
}

// removeCgroup rmdirs the run cgroup. Control files cannot be unlinked, so RemoveAll is not used.
func removeCgroup(cgroupPath string) {
	_ = os.Remove(cgroupPath)
}

func wasOomKilled(cgroupPath string) bool {
	data, err := os.ReadFile(filepath.Join(cgroupPath, "memory.events"))
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		if fields[0] == "oom_kill" {
			val, _ := strconv.ParseInt(fields[1], 10, 64)
			return val > 0
		}
	}
	return false
}

func writeCgroupValue(cgroupPath, name, value string) error {
	return os.WriteFile(filepath.Join(cgroupPath, name), []byte(value), 0640)
}
