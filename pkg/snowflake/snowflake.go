// Package snowflake mints the per-submission correlation id attached to
// every log line the worker emits while processing one dequeued
// submission, so a single submission's fetch/compile/run/persist steps can
// be grep-correlated across a noisy shared log stream.
package snowflake

import (
	"fmt"
	"time"

	"github.com/sony/sonyflake/v2"
)

var node *sonyflake.Sonyflake

// MustInit initializes the global id generator. machineID distinguishes
// worker replicas sharing the same startTime epoch.
func MustInit(startTime time.Time, machineID int) {
	settings := sonyflake.Settings{
		StartTime: startTime,
		MachineID: func() (int, error) {
			return machineID, nil
		},
		CheckMachineID: func(int) bool { return true },
	}
	n, err := sonyflake.New(settings)
	if err != nil {
		panic(fmt.Errorf("init sonyflake failed: %w", err))
	}
	node = n
}

// NextID returns the next correlation id. MustInit must have been called.
func NextID() (int64, error) {
	return node.NextID()
}
