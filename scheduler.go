package ecs

import (
	"context"
	"sort"
	"time"
)

// DefaultMaxFixedIterations bounds how many fixed-timestep catch-up steps a
// single Tick will run before giving up on draining the accumulator,
// guarding against the classic "spiral of death" when a frame takes longer
// than the fixed step itself.
const DefaultMaxFixedIterations = 10

// Scheduler orders systems into groups (plus an ungrouped set) and drives
// them once per Tick, single-threaded throughout (spec §5: no parallel
// system execution, unlike the teacher's async work groups). Every tick
// runs every fixed-timestep system across every group before any
// variable-timestep system runs (spec §5, §4.9). It integrates
// circuit-breaker skip checks (ErrorRecovery) and end-of-tick deferred
// command application (CommandBuffer).
type Scheduler struct {
	logger   Logger
	observer SchedulerObserver
	recovery *ErrorRecovery

	order  []string
	groups map[string]*groupState

	ungroupedRaw      []System
	ungroupedFixed    []System
	ungroupedVariable []System

	fixedDelta         time.Duration
	accum              time.Duration
	tick               uint64
	maxFixedIterations int

	runEveryNext map[string]time.Time

	autoExecuteCommands bool
	pending              *CommandBuffer
}

// SchedulerOption configures a Scheduler at construction time.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger installs the logger used for group/system diagnostics.
func WithSchedulerLogger(logger Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithInstrumentationConfig wires logging/Prometheus/SigNoz observers into
// the ambient instrumentation scaffold (api.go/observability.go).
func WithInstrumentationConfig(cfg InstrumentationConfig) SchedulerOption {
	return func(s *Scheduler) {
		s.observer = buildObserverChain(s.logger, cfg)
	}
}

// WithErrorRecovery installs the circuit-breaker state shared with the
// engine (so both scheduler skip-checks and plugin health queries see the
// same records).
func WithErrorRecovery(r *ErrorRecovery) SchedulerOption {
	return func(s *Scheduler) {
		if r != nil {
			s.recovery = r
		}
	}
}

// WithFixedTimestepDelta sets the constant delta used for fixed-timestep
// systems' catch-up iterations.
func WithFixedTimestepDelta(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.fixedDelta = d }
}

// WithMaxFixedIterations overrides the spiral-of-death guard on fixed-step
// catch-up iterations per Tick.
func WithMaxFixedIterations(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxFixedIterations = n
		}
	}
}

// WithAutoExecuteCommands controls whether commands queued during a tick are
// applied automatically at the end of that tick (default true, spec §4.9/§6
// "set_auto_execute_commands").
func WithAutoExecuteCommands(enabled bool) SchedulerOption {
	return func(s *Scheduler) { s.autoExecuteCommands = enabled }
}

// NewScheduler constructs an empty Scheduler.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		logger:               NewNoopLogger(),
		groups:               make(map[string]*groupState),
		fixedDelta:           20 * time.Millisecond,
		maxFixedIterations:   DefaultMaxFixedIterations,
		runEveryNext:         make(map[string]time.Time),
		autoExecuteCommands:  true,
		pending:              NewCommandBuffer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.observer == nil {
		s.observer = noopObserver{}
	}
	if s.recovery == nil {
		s.recovery = newErrorRecovery(0)
	}
	return s
}

// RegisterGroup orders cfg's systems topologically by their After/Before
// declarations, split by timestep kind, with priority-stable tie-breaking,
// and appends the group to the run order. Two systems (in this or any other
// group) writing the same component is permitted; the last write wins (spec
// §5) — there is no cross-group conflict check.
func (s *Scheduler) RegisterGroup(cfg GroupConfig) error {
	if cfg.Name == "" {
		return ErrDuplicateGroupName
	}
	if _, exists := s.groups[cfg.Name]; exists {
		return ErrDuplicateGroupName
	}

	fixed, variable, err := splitByTimestep(cfg.Systems)
	if err != nil {
		return err
	}

	gs := &groupState{
		name:            cfg.Name,
		enabled:         true,
		priority:        cfg.Priority,
		policy:          cfg.ErrorPolicy,
		fixedSystems:    fixed,
		variableSystems: variable,
		interval:        cfg.Interval,
	}

	s.groups[cfg.Name] = gs
	s.order = append(s.order, cfg.Name)
	sort.SliceStable(s.order, func(i, j int) bool {
		return s.groups[s.order[i]].priority > s.groups[s.order[j]].priority
	})
	return nil
}

// UnregisterGroup removes a previously registered group.
func (s *Scheduler) UnregisterGroup(name string) {
	delete(s.groups, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// EnableGroup re-enables a previously disabled group so it participates in
// future ticks (spec §4.5/§6 "create/enable/disable").
func (s *Scheduler) EnableGroup(name string) error {
	g, ok := s.groups[name]
	if !ok {
		return ErrUnknownGroup
	}
	g.enabled = true
	return nil
}

// DisableGroup stops a group from running on future ticks without
// unregistering it.
func (s *Scheduler) DisableGroup(name string) error {
	g, ok := s.groups[name]
	if !ok {
		return ErrUnknownGroup
	}
	g.enabled = false
	return nil
}

// GroupEnabled reports whether name is currently enabled.
func (s *Scheduler) GroupEnabled(name string) (bool, error) {
	g, ok := s.groups[name]
	if !ok {
		return false, ErrUnknownGroup
	}
	return g.enabled, nil
}

// RegisterSystem registers sys outside of any group (spec §4.5 step 2,
// "execute systems not assigned to any group").
func (s *Scheduler) RegisterSystem(sys System) error {
	name := sys.Descriptor().Name
	if name == "" {
		return ErrDuplicateSystemName
	}
	for _, existing := range s.ungroupedRaw {
		if existing.Descriptor().Name == name {
			return ErrDuplicateSystemName
		}
	}
	s.ungroupedRaw = append(s.ungroupedRaw, sys)
	return s.reorderUngrouped()
}

// UnregisterSystem removes a previously registered ungrouped system.
func (s *Scheduler) UnregisterSystem(name string) error {
	for i, sys := range s.ungroupedRaw {
		if sys.Descriptor().Name == name {
			s.ungroupedRaw = append(s.ungroupedRaw[:i], s.ungroupedRaw[i+1:]...)
			return s.reorderUngrouped()
		}
	}
	return ErrUnknownSystem
}

func (s *Scheduler) reorderUngrouped() error {
	fixed, variable, err := splitByTimestep(s.ungroupedRaw)
	if err != nil {
		return err
	}
	s.ungroupedFixed, s.ungroupedVariable = fixed, variable
	return nil
}

// SetAutoExecuteCommands toggles whether commands queued during a tick are
// applied automatically at the tick's end (spec §6 "set_auto_execute_commands").
func (s *Scheduler) SetAutoExecuteCommands(enabled bool) { s.autoExecuteCommands = enabled }

// AutoExecuteCommands reports the current auto-execute setting.
func (s *Scheduler) AutoExecuteCommands() bool { return s.autoExecuteCommands }

// PendingCommands returns the tick-scoped command buffer accumulated so far,
// for manual flushing when auto-execute is disabled.
func (s *Scheduler) PendingCommands() *CommandBuffer { return s.pending }

// TickIndex returns the number of ticks the scheduler has executed so far.
func (s *Scheduler) TickIndex() uint64 { return s.tick }

// Tick advances the world by dt: every enabled, interval-ready group and the
// ungrouped set run their fixed-timestep systems (zero or more
// MaxFixedIterations-bounded catch-up steps of fixedDelta), then every
// variable-timestep system runs once using dt (spec §5 "fixed systems run
// before variable systems within the same tick; within each kind, groups in
// descending priority, then ungrouped systems"). Commands queued by any
// system during the tick are collected and, if auto-execute is enabled,
// applied once after both passes complete (spec §4.9/§5).
func (s *Scheduler) Tick(ctx context.Context, engine *Engine, dt time.Duration) error {
	s.tick++
	s.accum += dt

	fixedSteps := 0
	if s.fixedDelta > 0 {
		fixedSteps = int(s.accum / s.fixedDelta)
		if fixedSteps > s.maxFixedIterations {
			fixedSteps = s.maxFixedIterations
			s.logger.Warn("fixed-timestep accumulator exceeded max iterations, resetting",
				"max_fixed_iterations", s.maxFixedIterations)
			s.accum = 0
		} else {
			s.accum -= time.Duration(fixedSteps) * s.fixedDelta
			if s.accum < 0 {
				s.accum = 0
			}
		}
	}

	eligible := make(map[string]bool, len(s.order))
	for _, name := range s.order {
		g := s.groups[name]
		if g.enabled && s.groupReady(g) {
			eligible[name] = true
		}
	}

	var tickErr error
	if err := s.runPass(ctx, engine, TimestepFixed, s.fixedDelta, fixedSteps, eligible); err != nil {
		tickErr = err
	}
	if tickErr == nil {
		if err := s.runPass(ctx, engine, TimestepVariable, dt, 1, eligible); err != nil {
			tickErr = err
		}
	}

	if s.autoExecuteCommands && s.pending.Len() > 0 {
		engine.applyCommands(s.pending, true)
	}

	return tickErr
}

// ExecuteCommands flushes the scheduler's accumulated pending commands
// immediately, for callers that disabled auto-execute and want explicit
// control over when structural changes land (spec §6 "commands.execute").
func (s *Scheduler) ExecuteCommands(engine *Engine, rollbackOnError bool) CommandExecutionResult {
	return engine.applyCommands(s.pending, rollbackOnError)
}

func (s *Scheduler) groupReady(g *groupState) bool {
	if g.interval <= 0 {
		return true
	}
	if timeNow().Before(g.nextRun) {
		return false
	}
	g.nextRun = timeNow().Add(g.interval)
	return true
}

// runPass runs every eligible group's systems of the given kind (in
// descending group priority), then the matching ungrouped systems, per spec
// §5's ordering rule.
func (s *Scheduler) runPass(ctx context.Context, engine *Engine, kind TimestepMode, delta time.Duration, steps int, eligible map[string]bool) error {
	for _, name := range s.order {
		if !eligible[name] {
			continue
		}
		g := s.groups[name]
		systems := g.variableSystems
		if kind == TimestepFixed {
			systems = g.fixedSystems
		}
		if err := s.runSystemsPass(ctx, engine, name, systems, g.policy, delta, steps); err != nil && g.policy == ErrorPolicyAbort {
			return err
		}
	}

	systems := s.ungroupedVariable
	if kind == TimestepFixed {
		systems = s.ungroupedFixed
	}
	return s.runSystemsPass(ctx, engine, "", systems, ErrorPolicyContinue, delta, steps)
}

// runSystemsPass executes one ordered list of same-kind systems once (or,
// for a fixed-timestep pass, steps times each), honoring each system's
// Enabled flag, conditional predicate, and RunEvery wall-clock gate (spec
// §4.5 "system step").
func (s *Scheduler) runSystemsPass(ctx context.Context, engine *Engine, groupName string, systems []System, policy ErrorPolicy, delta time.Duration, steps int) error {
	if len(systems) == 0 {
		return nil
	}

	start := timeNow()
	summary := GroupSummary{Group: groupName, Tick: s.tick, SystemsTotal: len(systems)}
	var firstErr error

	for _, sys := range systems {
		desc := sys.Descriptor()
		if !desc.Enabled {
			summary.SystemsSkipped++
			continue
		}
		if !s.runEveryReady(desc.Name, desc.RunEvery) {
			summary.SystemsSkipped++
			continue
		}

		ran := false
		succeeded := false
		for i := 0; i < steps; i++ {
			if !s.recovery.ShouldRun(desc.Name) {
				summary.SystemsSkipped++
				continue
			}
			ran = true
			if err := s.runOne(ctx, engine, sys, desc, delta, policy); err != nil {
				summary.Error = err
				if firstErr == nil {
					firstErr = err
				}
				if policy == ErrorPolicyAbort {
					summary.Duration = timeNow().Sub(start)
					s.observer.GroupCompleted(summary)
					return err
				}
			} else {
				succeeded = true
			}
		}
		if ran {
			summary.SystemsExecuted++
			s.markRunEveryRan(desc.Name, desc.RunEvery)
			if desc.RunOnce && succeeded {
				sys.SetEnabled(false)
			}
		} else if steps == 0 {
			summary.SystemsSkipped++
		}
	}

	summary.Duration = timeNow().Sub(start)
	s.observer.GroupCompleted(summary)
	return firstErr
}

func (s *Scheduler) runEveryReady(name string, every time.Duration) bool {
	if every <= 0 {
		return true
	}
	next, ok := s.runEveryNext[name]
	if !ok {
		return true
	}
	return !timeNow().Before(next)
}

func (s *Scheduler) markRunEveryRan(name string, every time.Duration) {
	if every <= 0 {
		return
	}
	s.runEveryNext[name] = timeNow().Add(every)
}

// runOne executes a single system step once: Condition gate, before hook,
// the system's Run (or act-per-entity binding), after hook, then either
// ErrorRecovery bookkeeping on success, or
// ErrorPolicyRetry's single-retry semantics on failure (adapted from the
// teacher's runWorkGroup retry loop in scheduler_impl.go). Queued commands
// are appended to the scheduler's tick-scoped pending buffer rather than
// applied immediately, so structural changes land only after every system
// in the tick has run (spec §5).
func (s *Scheduler) runOne(ctx context.Context, engine *Engine, sys System, desc SystemDescriptor, delta time.Duration, policy ErrorPolicy) error {
	buf := engine.commandPool.Get()
	defer engine.commandPool.Put(buf)

	exec := &systemExecContext{
		engine: engine,
		cmds:   buf,
		delta:  delta,
		tick:   s.tick,
		logger: s.logger.With("system", desc.Name),
	}

	if desc.Condition != nil && !desc.Condition(exec) {
		return nil
	}

	run := func() SystemResult {
		if desc.BeforeHook != nil {
			desc.BeforeHook(ctx, exec)
		}
		result := sys.Run(ctx, exec)
		if desc.AfterHook != nil {
			desc.AfterHook(ctx, exec)
		}
		return result
	}

	result := run()
	if result.Err == nil {
		s.recovery.RecordSuccess(desc.Name)
		s.pending.absorb(buf)
		return nil
	}

	strategy, _ := s.recovery.RecordFailure(desc.Name, s.tick, result.Err)
	if strategy == StrategyRetry && policy == ErrorPolicyRetry {
		result = run()
		if result.Err == nil {
			s.recovery.RecordSuccess(desc.Name)
			s.pending.absorb(buf)
			return nil
		}
	}
	return result.Err
}

// systemExecContext is the concrete ExecutionContext passed to every system
// Run call, adapted from the teacher's systemExecutionContext.
type systemExecContext struct {
	engine *Engine
	cmds   *CommandBuffer
	delta  time.Duration
	tick   uint64
	logger Logger
}

func (c *systemExecContext) Engine() *Engine         { return c.engine }
func (c *systemExecContext) Commands() *CommandBuffer { return c.cmds }
func (c *systemExecContext) TimeDelta() time.Duration { return c.delta }
func (c *systemExecContext) TickIndex() uint64        { return c.tick }
func (c *systemExecContext) Logger() Logger           { return c.logger }
