package ecs

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
)

// TimestepMode selects whether a system runs once per Tick using the
// frame's variable delta, or a fixed number of times per Tick using a
// constant delta accumulated across ticks (spec §4.9). A system never
// changes classification after it is constructed.
type TimestepMode int

const (
	TimestepVariable TimestepMode = iota
	TimestepFixed
)

// WatchEvent is delivered to a system's OnWatch callback whenever something
// it declared an interest in changes: a watched component write, a watched
// singleton set/remove, or a hierarchy edge change (spec §4.5 "watched
// component/singleton/hierarchy filter sets and their callbacks").
type WatchEvent struct {
	Kind   string
	Entity Identity
	Type   TypeID
}

// ActFunc is bound to a query filter on a SystemDescriptor: the scheduler
// resolves every matching entity's required-all component references each
// step and invokes Act once per entity (spec §4.5 "act(entity,
// *required_all_refs)").
type ActFunc func(ctx context.Context, exec ExecutionContext, entity Identity, refs []any) error

// ConditionFunc gates whether a system's step runs at all this tick, beyond
// its Enabled flag and any RunEvery interval (spec §4.5 "conditional
// predicate").
type ConditionFunc func(exec ExecutionContext) bool

// HookFunc brackets a system's step (spec §4.5 "before"/"after" hooks),
// distinct from the ordering-only Before/After name lists below.
type HookFunc func(ctx context.Context, exec ExecutionContext)

// SystemDescriptor carries the metadata the scheduler needs to order,
// validate, schedule, and run a system (spec §3). Adapted from the teacher's
// async work-group SystemDescriptor (api.go): AsyncAllowed and the
// Reads/Writes/Resources access-declaration fields are gone, since the
// kernel's scheduling model is strictly single-threaded and two systems
// writing the same component is explicitly permitted (spec §5, "last write
// wins") rather than rejected at registration. After/Before dependency names
// drive topological ordering among systems sharing a timestep kind.
type SystemDescriptor struct {
	Name     string
	Tags     []string
	RunEvery time.Duration
	Timestep TimestepMode
	Priority int
	After    []string
	Before   []string

	Enabled   bool
	RunOnce   bool
	Condition ConditionFunc

	BeforeHook HookFunc
	AfterHook  HookFunc

	// Filter and Act bind this system to a live query: when Act is non-nil,
	// the scheduler resolves Filter.All's component values for every
	// matching entity and calls Act once per entity instead of invoking
	// Run (spec §4.5).
	Filter QueryFilter
	Act    ActFunc

	WatchComponents []TypeID
	WatchSingletons []TypeID
	WatchHierarchy  bool
	OnWatch         func(exec ExecutionContext, event WatchEvent)
}

// SystemResult reports how a system behaved during one execution.
type SystemResult struct {
	Skipped bool
	Err     error
}

// ExecutionContext supplies a system with scoped access to the engine during
// Run.
type ExecutionContext interface {
	Engine() *Engine
	Commands() *CommandBuffer
	TimeDelta() time.Duration
	TickIndex() uint64
	Logger() Logger
}

// System represents one unit of executable logic within a group, or
// ungrouped within the scheduler directly (spec §4.5 step 2).
type System interface {
	Descriptor() SystemDescriptor
	Run(ctx context.Context, exec ExecutionContext) SystemResult
	// SetEnabled toggles the system's enabled flag, used both by explicit
	// caller control and by the scheduler's run_once auto-disable.
	SetEnabled(enabled bool)
}

// RunFunc is the function signature backing a system built with NewSystem.
type RunFunc func(ctx context.Context, exec ExecutionContext) SystemResult

// SystemOption configures a SystemDescriptor when building a system with
// NewSystem or NewQuerySystem (spec §6 functional-option construction).
type SystemOption func(*SystemDescriptor)

func WithTags(tags ...string) SystemOption {
	return func(d *SystemDescriptor) { d.Tags = append(d.Tags, tags...) }
}

// WithRunEvery gates a system so it skips steps until every d has elapsed in
// real time since its last run, per spec §4.5's "run_every(ms) systems skip
// steps until the real-time interval elapses" (wall-clock, not tick count).
func WithRunEvery(d time.Duration) SystemOption {
	return func(d2 *SystemDescriptor) { d2.RunEvery = d }
}

func WithFixedTimestep() SystemOption {
	return func(d *SystemDescriptor) { d.Timestep = TimestepFixed }
}

func WithPriority(priority int) SystemOption {
	return func(d *SystemDescriptor) { d.Priority = priority }
}

func WithAfter(names ...string) SystemOption {
	return func(d *SystemDescriptor) { d.After = append(d.After, names...) }
}

func WithBefore(names ...string) SystemOption {
	return func(d *SystemDescriptor) { d.Before = append(d.Before, names...) }
}

// WithEnabled sets the system's initial enabled state (default true).
func WithEnabled(enabled bool) SystemOption {
	return func(d *SystemDescriptor) { d.Enabled = enabled }
}

// WithCondition installs a conditional predicate gating the system's step,
// evaluated after Enabled/RunEvery and before the before hook (spec §4.5).
func WithCondition(fn ConditionFunc) SystemOption {
	return func(d *SystemDescriptor) { d.Condition = fn }
}

// WithHooks installs before/after lifecycle hooks bracketing the system's
// step (spec §4.5).
func WithHooks(before, after HookFunc) SystemOption {
	return func(d *SystemDescriptor) { d.BeforeHook = before; d.AfterHook = after }
}

// WithRunOnce marks the system to auto-disable after its first successful
// step (spec §4.5 "run_once systems auto-disable after one successful
// step").
func WithRunOnce() SystemOption {
	return func(d *SystemDescriptor) { d.RunOnce = true }
}

// WithWatch subscribes the system to component writes, singleton changes,
// and/or hierarchy edge changes, invoking onWatch for each matching event
// (spec §4.5 "watched component/singleton/hierarchy filter sets and their
// callbacks"). Watching is wired through the engine's EventEmitter at
// registration time, not polled.
func WithWatch(components []TypeID, singletons []TypeID, hierarchy bool, onWatch func(exec ExecutionContext, event WatchEvent)) SystemOption {
	return func(d *SystemDescriptor) {
		d.WatchComponents = components
		d.WatchSingletons = singletons
		d.WatchHierarchy = hierarchy
		d.OnWatch = onWatch
	}
}

type funcSystem struct {
	mu      sync.Mutex
	desc    SystemDescriptor
	run     RunFunc
	enabled bool
}

// NewSystem builds a System from a plain run function plus descriptor
// options. The system is enabled by default.
func NewSystem(name string, run RunFunc, opts ...SystemOption) System {
	d := SystemDescriptor{Name: name, Enabled: true}
	for _, opt := range opts {
		opt(&d)
	}
	return &funcSystem{desc: d, run: run, enabled: d.Enabled}
}

// NewQuerySystem builds a System bound to a query and an act callback
// invoked once per matching entity, resolving the filter's All types as the
// entity's required-all component references (spec §4.5 "act(entity,
// *required_all_refs)"). It has no RunFunc of its own; the scheduler drives
// Act directly.
func NewQuerySystem(name string, filter QueryFilter, act ActFunc, opts ...SystemOption) System {
	d := SystemDescriptor{Name: name, Enabled: true, Filter: filter, Act: act}
	for _, opt := range opts {
		opt(&d)
	}
	return &funcSystem{desc: d, enabled: d.Enabled}
}

func (s *funcSystem) Descriptor() SystemDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.desc
	d.Enabled = s.enabled
	return d
}

func (s *funcSystem) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

func (s *funcSystem) Run(ctx context.Context, exec ExecutionContext) SystemResult {
	if s.run == nil {
		return s.runQueryBound(ctx, exec)
	}
	return s.run(ctx, exec)
}

// runQueryBound resolves the descriptor's query and invokes Act once per
// matching entity, aggregating any per-entity failures with
// hashicorp/go-multierror rather than stopping at the first one (spec §4.5
// "for each entity in the query iterate and call act").
func (s *funcSystem) runQueryBound(ctx context.Context, exec ExecutionContext) SystemResult {
	desc := s.Descriptor()
	if desc.Act == nil {
		return SystemResult{Skipped: true}
	}

	query := exec.Engine().Queries().querySystemCache(desc.Name, desc.Filter)
	var errs error
	for _, entity := range query.Matches() {
		refs := make([]any, 0, len(desc.Filter.All))
		for _, t := range desc.Filter.All {
			v, ok := exec.Engine().getComponentRaw(entity, t)
			if !ok {
				refs = append(refs, nil)
				continue
			}
			refs = append(refs, v)
		}
		if err := desc.Act(ctx, exec, entity, refs); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if errs != nil {
		return SystemResult{Err: errs}
	}
	return SystemResult{}
}

// orderSystems produces a topological ordering of systems honoring their
// After/Before dependency declarations (Kahn's algorithm), breaking ties
// among simultaneously available systems by descending Priority and then by
// original registration order (spec §4.9 "topological + priority-stable
// ordering"). It returns ErrCircularDependency if the dependency graph has a
// cycle.
func orderSystems(systems []System) ([]System, error) {
	n := len(systems)
	nameIndex := make(map[string]int, n)
	for i, s := range systems {
		nameIndex[s.Descriptor().Name] = i
	}

	indegree := make([]int, n)
	adj := make([][]int, n)
	for i, s := range systems {
		d := s.Descriptor()
		for _, after := range d.After {
			if j, ok := nameIndex[after]; ok && j != i {
				adj[j] = append(adj[j], i)
				indegree[i]++
			}
		}
		for _, before := range d.Before {
			if j, ok := nameIndex[before]; ok && j != i {
				adj[i] = append(adj[i], j)
				indegree[j]++
			}
		}
	}

	visited := make([]bool, n)
	order := make([]System, 0, n)
	for len(order) < n {
		best := -1
		for i := 0; i < n; i++ {
			if visited[i] || indegree[i] != 0 {
				continue
			}
			if best == -1 || systems[i].Descriptor().Priority > systems[best].Descriptor().Priority {
				best = i
			}
		}
		if best == -1 {
			return nil, ErrCircularDependency
		}
		visited[best] = true
		order = append(order, systems[best])
		for _, j := range adj[best] {
			indegree[j]--
		}
	}
	return order, nil
}
