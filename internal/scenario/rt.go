package scenario

import (
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ethercrab-rs/latency-data/internal/meta"
)

// KernelRTPriority is the priority kernel threads run at by default on
// realtime kernels. User threads at or above it can starve the kernel's own
// work, so the catalog's aggressive pairs trip a warning, not an error.
const KernelRTPriority = 50

// lockThreadPriority pins the calling goroutine to its OS thread and, when
// the settings ask for it, moves that thread onto SCHED_FIFO at prio.
// A prio of zero is a sentinel: leave default scheduling unchanged.
//
// The caller must keep running on the same goroutine for the lifetime of the
// lane; the thread lock is deliberately never undone so the thread is thrown
// away when the goroutine exits.
func lockThreadPriority(name string, settings meta.TestSettings, prio uint8) error {
	runtime.LockOSThread()

	if !settings.IsRT || prio == 0 {
		return nil
	}

	attr := &unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   unix.SCHED_FIFO,
		Priority: uint32(prio),
	}

	if err := unix.SchedSetAttr(0, attr, 0); err != nil {
		return fmt.Errorf("setting SCHED_FIFO %d on %s thread: %w", prio, name, err)
	}

	logrus.WithFields(logrus.Fields{
		"thread":   name,
		"priority": prio,
	}).Debug("applied realtime scheduling")

	return nil
}

// logPriorityWarnings flags likely misconfiguration without stopping the
// run. These mirror the checks an operator would otherwise do by hand.
func logPriorityWarnings(settings meta.TestSettings) {
	if settings.NetPrio >= KernelRTPriority {
		logrus.WithField("net_prio", settings.NetPrio).
			Warn("net priority is at or above the kernel default realtime priority")
	}

	if settings.TaskPrio >= KernelRTPriority {
		logrus.WithField("task_prio", settings.TaskPrio).
			Warn("task priority is at or above the kernel default realtime priority")
	}

	if settings.TaskPrio > 0 && settings.TaskPrio >= settings.NetPrio {
		logrus.WithFields(logrus.Fields{
			"task_prio": settings.TaskPrio,
			"net_prio":  settings.NetPrio,
		}).Warn("task priority is at or above net priority, ensure this is intentional")
	}
}
