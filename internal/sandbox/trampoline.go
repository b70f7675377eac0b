package sandbox

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// Environment variable names the parent uses to pass the resource
// envelope across the re-exec boundary, since the trampoline's own
// environment is otherwise cleared before the final exec.
const (
	envCPULimit   = "JUDGE_TRAMPOLINE_CPU_SECONDS"
	envMemLimitMB = "JUDGE_TRAMPOLINE_MEM_MB"
	envFDLimit    = "JUDGE_TRAMPOLINE_FD_LIMIT"
	envProcLimit  = "JUDGE_TRAMPOLINE_PROC_LIMIT"
	envUser       = "JUDGE_TRAMPOLINE_USER"
)

// memoryLimitHeadroomBytes absorbs the Go trampoline's own reserved
// virtual address space. RLIMIT_AS is a ceiling on the calling process's
// entire virtual memory, not the eventual submission's. The Go runtime's
// own arenas, goroutine stacks, and GC bookkeeping can already reserve
// virtual address space comparable to a tight memMB cap before the
// trampoline ever calls Setrlimit. Without headroom, a legitimate
// submission can fail non-deterministically with a trampoline crash
// (or an ENOMEM from the runtime itself) that has nothing to do with
// the submission's own memory use, and would surface as a spurious
// Runtime Error. A process forked straight from a minimal C runtime with
// near-zero address space of its own would never hit this; a re-exec'd
// Go binary starts from a much larger baseline. Once exec() replaces
// this process's image, usage against RLIMIT_AS restarts from the new
// image's own mappings, so this headroom only ever benefits the
// trampoline's last moments, not the submission's effective budget.
const memoryLimitHeadroomBytes = 64 * 1024 * 1024

// TrampolineMain is the entire body of the re-exec'd child. It runs with
// fresh namespaces already established by the parent's clone() and must,
// in order: apply the limits that don't constrain virtual memory, drop
// privileges, mark itself non-dumpable, apply the memory limit as the
// very last step, and exec-replace itself with the target executable.
// It never returns on success; on failure it writes a diagnostic to
// stderr and exits 127, mirroring the original sandbox's execve-failure
// disposition.
func TrampolineMain(executablePath string) {
	if err := applyNonMemoryRlimits(); err != nil {
		fail("rlimits: %v", err)
	}
	if err := dropPrivileges(os.Getenv(envUser)); err != nil {
		fail("privilege drop: %v", err)
	}
	if err := unix.Prctl(unix.PR_SET_DUMPABLE, 0, 0, 0, 0); err != nil {
		fail("prctl dumpable: %v", err)
	}

	// A seccomp allow-list would install here, immediately before the
	// exec that hands control to untrusted code. Not installed: an
	// earlier attempt at one proved too brittle against libc variations
	// in its execve argument shape and got shelved rather than ship
	// something that rejects legitimate programs.

	argv := []string{executablePath}
	env := []string{}

	// Applied last, immediately before Exec: see memoryLimitHeadroomBytes.
	if err := applyMemoryLimit(); err != nil {
		fail("rlimit_as: %v", err)
	}
	if err := syscall.Exec(executablePath, argv, env); err != nil {
		fail("exec %s: %v", executablePath, err)
	}
}

func applyNonMemoryRlimits() error {
	cpuSeconds := envInt(envCPULimit, 2)
	fdLimit := envUint64(envFDLimit, 64)
	procLimit := envUint64(envProcLimit, 32)

	limits := []struct {
		resource int
		cur, max uint64
	}{
		{unix.RLIMIT_CPU, uint64(cpuSeconds), uint64(cpuSeconds)},
		{unix.RLIMIT_NOFILE, fdLimit, fdLimit},
		{unix.RLIMIT_NPROC, procLimit, procLimit},
	}
	for _, l := range limits {
		rlim := unix.Rlimit{Cur: l.cur, Max: l.max}
		if err := unix.Setrlimit(l.resource, &rlim); err != nil {
			return fmt.Errorf("setrlimit(%d): %w", l.resource, err)
		}
	}
	return nil
}

// applyMemoryLimit sets RLIMIT_AS with memoryLimitHeadroomBytes of slack
// on top of the configured cap, so the Setrlimit call itself cannot
// starve the trampoline process of the virtual address space it already
// holds. Must be called as the last step before Exec.
func applyMemoryLimit() error {
	memMB := envInt64(envMemLimitMB, 256)
	limitBytes := uint64(memMB)*1024*1024 + memoryLimitHeadroomBytes
	rlim := unix.Rlimit{Cur: limitBytes, Max: limitBytes}
	if err := unix.Setrlimit(unix.RLIMIT_AS, &rlim); err != nil {
		return fmt.Errorf("setrlimit(%d): %w", unix.RLIMIT_AS, err)
	}
	return nil
}

// dropPrivileges sets gid then uid, in that order: once uid is dropped
// the process can no longer change its gid. No-op when user is empty,
// which is the case unless the worker is itself running as root and has
// been given an unprivileged account to drop to.
func dropPrivileges(user string) error {
	if user == "" {
		return nil
	}
	uid, gid, err := lookupUser(user)
	if err != nil {
		return err
	}
	if err := unix.Setgid(gid); err != nil {
		return fmt.Errorf("setgid: %w", err)
	}
	if err := unix.Setuid(uid); err != nil {
		return fmt.Errorf("setuid: %w", err)
	}
	return nil
}

func lookupUser(name string) (uid, gid int, err error) {
	u, err := user.Lookup(name)
	if err != nil {
		return 0, 0, fmt.Errorf("lookup user %q: %w", name, err)
	}
	uid, err = strconv.Atoi(u.Uid)
	if err != nil {
		return 0, 0, fmt.Errorf("parse uid: %w", err)
	}
	gid, err = strconv.Atoi(u.Gid)
	if err != nil {
		return 0, 0, fmt.Errorf("parse gid: %w", err)
	}
	return uid, gid, nil
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "sandbox trampoline: "+format+"\n", args...)
	os.Exit(127)
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func envInt64(key string, def int64) int64 {
	v, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil {
		return def
	}
	return v
}

func envUint64(key string, def uint64) uint64 {
	v, err := strconv.ParseUint(os.Getenv(key), 10, 64)
	if err != nil {
		return def
	}
	return v
}

func envPair(key, value string) string { return key + "=" + value }

func itoa(v int) string     { return strconv.Itoa(v) }
func itoa64(v int64) string { return strconv.FormatInt(v, 10) }
func uitoa(v uint64) string { return strconv.FormatUint(v, 10) }
