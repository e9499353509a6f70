package ecs

import "time"

// ErrorPolicy controls how the scheduler reacts to a system failure within a
// group (spec §4.9).
type ErrorPolicy uint8

const (
	ErrorPolicyAbort ErrorPolicy = iota
	ErrorPolicyContinue
	ErrorPolicyRetry
)

// GroupConfig declares a named set of systems and their scheduling
// preferences. Adapted from the teacher's WorkGroupConfig (api.go) with the
// async execution mode removed per the kernel's single-threaded model (spec
// §5). Interval is a wall-clock gate, not a tick count (spec §4.5).
type GroupConfig struct {
	Name        string
	Systems     []System
	Interval    time.Duration
	ErrorPolicy ErrorPolicy
	Priority    int
}

// groupState is the scheduler's internal record for a registered group: its
// systems split into fixed/variable run order (each independently
// topologically + priority ordered, per spec §5 "fixed systems run before
// variable systems within the same tick").
type groupState struct {
	name     string
	enabled  bool
	priority int
	policy   ErrorPolicy

	fixedSystems    []System
	variableSystems []System

	interval time.Duration
	nextRun  time.Time
}

// splitByTimestep partitions systems into fixed and variable subsets and
// orders each independently.
func splitByTimestep(systems []System) (fixed, variable []System, err error) {
	var rawFixed, rawVariable []System
	for _, sys := range systems {
		if sys.Descriptor().Timestep == TimestepFixed {
			rawFixed = append(rawFixed, sys)
		} else {
			rawVariable = append(rawVariable, sys)
		}
	}
	fixed, err = orderSystems(rawFixed)
	if err != nil {
		return nil, nil, err
	}
	variable, err = orderSystems(rawVariable)
	if err != nil {
		return nil, nil, err
	}
	return fixed, variable, nil
}
