package ecs

import (
	"context"
	"time"
)

// Engine is the composition root binding entity/component storage, the
// query index, hierarchy, messaging, error recovery, and the scheduler into
// one cohesive kernel (spec §4/§6). It plays the role the teacher's World
// played, generalized from a single component-storage facade into the full
// engine described by the kernel spec.
type Engine struct {
	entities   *entityStore
	archetypes *ArchetypeStore
	components *ComponentRegistry
	hierarchy  *Hierarchy
	legacy     *legacyStorageProvider
	queries    *QueryIndex
	tracker    *ChangeTracker
	events     *EventEmitter
	bus        *MessageBus
	recovery   *ErrorRecovery
	resources  ResourceContainer
	plugins    *pluginHost

	scheduler   *Scheduler
	commandPool *CommandBufferPool

	logger        Logger
	archetypeMode bool
}

// EngineOption configures an Engine at construction time (spec §6 functional
// option configuration).
type EngineOption func(*engineConfig)

type engineConfig struct {
	archetypeMode    bool
	logger           Logger
	debounce         time.Duration
	messageHistory   int
	errorHistory     int
	fixedDelta       time.Duration
	instrumentation  InstrumentationConfig
	hasInstrument    bool
}

// WithArchetypeMode selects dense archetype-table storage (the default)
// versus the legacy sparse per-type fallback (spec §9).
func WithArchetypeMode(enabled bool) EngineOption {
	return func(c *engineConfig) { c.archetypeMode = enabled }
}

// WithEngineLogger installs the logger propagated to the scheduler and every
// subsystem that logs diagnostics.
func WithEngineLogger(logger Logger) EngineOption {
	return func(c *engineConfig) { c.logger = logger }
}

// WithChangeDebounce sets the ChangeTracker's auto-flush debounce interval.
func WithChangeDebounce(d time.Duration) EngineOption {
	return func(c *engineConfig) { c.debounce = d }
}

// WithMessageHistory bounds the MessageBus's per-topic retained history.
func WithMessageHistory(limit int) EngineOption {
	return func(c *engineConfig) { c.messageHistory = limit }
}

// WithErrorHistory bounds ErrorRecovery's retained failure history.
func WithErrorHistory(limit int) EngineOption {
	return func(c *engineConfig) { c.errorHistory = limit }
}

// WithEngineFixedTimestep sets the scheduler's fixed-timestep delta.
func WithEngineFixedTimestep(d time.Duration) EngineOption {
	return func(c *engineConfig) { c.fixedDelta = d }
}

// WithEngineInstrumentation wires logging/Prometheus/SigNoz observers into
// the scheduler.
func WithEngineInstrumentation(cfg InstrumentationConfig) EngineOption {
	return func(c *engineConfig) { c.instrumentation = cfg; c.hasInstrument = true }
}

// NewEngine builds a fully wired Engine, defaulting to archetype storage, a
// no-op logger, and a 16ms change-tracking debounce.
func NewEngine(opts ...EngineOption) *Engine {
	cfg := &engineConfig{
		archetypeMode:  true,
		logger:         NewNoopLogger(),
		debounce:       16 * time.Millisecond,
		messageHistory: 64,
		fixedDelta:     20 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	entities := newEntityStore()
	archetypes := newArchetypeStore()
	components := newComponentRegistry()
	legacy := newLegacyStorageProvider()
	events := newEventEmitter()
	hierarchy := newHierarchy(entities, events)

	engine := &Engine{
		entities:      entities,
		archetypes:    archetypes,
		components:    components,
		hierarchy:     hierarchy,
		legacy:        legacy,
		tracker:       newChangeTracker(cfg.debounce),
		events:        events,
		bus:           newMessageBus(cfg.messageHistory),
		recovery:      newErrorRecovery(cfg.errorHistory),
		resources:     newResourceContainer(),
		commandPool:   NewCommandBufferPool(),
		logger:        cfg.logger,
		archetypeMode: cfg.archetypeMode,
	}
	engine.plugins = newPluginHost(engine)

	engine.queries = newQueryIndex(cfg.archetypeMode, archetypes, entities, legacy, func(identity Identity) (map[string]struct{}, bool) {
		e, ok := entities.GetByIdentity(identity)
		if !ok {
			return nil, false
		}
		return e.tags, true
	})
	archetypes.OnMove(func(identity Identity, _, _ archetypeID) {
		engine.queries.Update(identity)
	})

	schedOpts := []SchedulerOption{
		WithSchedulerLogger(cfg.logger),
		WithErrorRecovery(engine.recovery),
		WithFixedTimestepDelta(cfg.fixedDelta),
	}
	if cfg.hasInstrument {
		schedOpts = append(schedOpts, WithInstrumentationConfig(cfg.instrumentation))
	}
	engine.scheduler = NewScheduler(schedOpts...)

	return engine
}

// Entities, Archetypes, Components, Hierarchy, Legacy, Queries, Tracker,
// Events, Bus, Recovery, Resources, Scheduler, and Logger expose the
// engine's composed subsystems for direct use by systems, plugins, and
// tests.
func (e *Engine) Entities() *entityStore       { return e.entities }
func (e *Engine) Archetypes() *ArchetypeStore  { return e.archetypes }
func (e *Engine) Components() *ComponentRegistry { return e.components }
func (e *Engine) Hierarchy() *Hierarchy        { return e.hierarchy }
func (e *Engine) Queries() *QueryIndex         { return e.queries }
func (e *Engine) Tracker() *ChangeTracker      { return e.tracker }
func (e *Engine) Events() *EventEmitter        { return e.events }
func (e *Engine) Bus() *MessageBus             { return e.bus }
func (e *Engine) Recovery() *ErrorRecovery     { return e.recovery }
func (e *Engine) Resources() ResourceContainer { return e.resources }
func (e *Engine) Scheduler() *Scheduler        { return e.scheduler }
func (e *Engine) Logger() Logger               { return e.logger }
func (e *Engine) Plugins() *pluginHost         { return e.plugins }

// ArchetypeMode reports whether this engine uses dense archetype storage.
func (e *Engine) ArchetypeMode() bool { return e.archetypeMode }

// RegisterGroup registers a group of systems with the scheduler, wiring any
// watched-component/singleton/hierarchy callbacks the group's systems
// declare.
func (e *Engine) RegisterGroup(cfg GroupConfig) error {
	if err := e.scheduler.RegisterGroup(cfg); err != nil {
		return err
	}
	for _, sys := range cfg.Systems {
		e.wireSystemWatches(sys.Descriptor())
	}
	return nil
}

// RegisterSystem registers sys outside of any group (spec §4.5 step 2).
func (e *Engine) RegisterSystem(sys System) error {
	if err := e.scheduler.RegisterSystem(sys); err != nil {
		return err
	}
	e.wireSystemWatches(sys.Descriptor())
	return nil
}

// Tick advances the scheduler by dt, then reclaims every entity queued for
// deletion this tick, evicting it from the query index, hierarchy,
// archetype/legacy storage before the shell returns to the entity pool
// (spec §4.9 end-of-tick composition).
func (e *Engine) Tick(ctx context.Context, dt time.Duration) error {
	if err := e.scheduler.Tick(ctx, e, dt); err != nil {
		return err
	}
	e.cleanup()
	return nil
}

func (e *Engine) cleanup() {
	e.entities.mu.Lock()
	pending := make([]Identity, 0, len(e.entities.pendingDeletion))
	for identity := range e.entities.pendingDeletion {
		pending = append(pending, identity)
	}
	e.entities.mu.Unlock()
	for _, identity := range pending {
		e.hierarchy.Detach(identity)
		if e.archetypeMode {
			e.archetypes.RemoveEntity(e.entities, identity)
		} else {
			e.legacy.EvictEntity(identity)
		}
		e.queries.Evict(identity)
	}
	e.entities.Cleanup()
}

// commandContext builds the shared execution context commands apply
// against, used both by the scheduler's end-of-tick flush and by Apply for
// ad-hoc/test use.
func (e *Engine) commandContext() *commandExecContext {
	return &commandExecContext{
		entities:      e.entities,
		archetypes:    e.archetypes,
		components:    e.components,
		hierarchy:     e.hierarchy,
		legacy:        e.legacy,
		queries:       e.queries,
		tracker:       e.tracker,
		events:        e.events,
		archetypeMode: e.archetypeMode,
		placeholders:  make(map[int]Identity),
	}
}

// applyCommands flushes buf against the engine's storage, logging a warning
// when the flush rolled back. rollbackOnError selects whether the first
// command failure unwinds every command applied so far, or is recorded and
// execution continues (spec §4.6 "execute(rollback_on_error)").
func (e *Engine) applyCommands(buf *CommandBuffer, rollbackOnError bool) CommandExecutionResult {
	result := executeCommandBuffer(e.commandContext(), buf, rollbackOnError)
	if result.RolledBack {
		e.logger.Warn("command buffer rolled back", "failed", result.Failed, "err", result.Errors)
	} else if result.Failed > 0 {
		e.logger.Warn("command buffer finished with errors", "failed", result.Failed, "err", result.Errors)
	}
	return result
}

// Apply immediately executes buf against engine storage outside of a
// scheduled system's Run call, for setup code and tests. Failures roll back
// the whole buffer (spec §4.6 default rollback_on_error=true).
func (e *Engine) Apply(buf *CommandBuffer) CommandExecutionResult {
	return e.applyCommands(buf, true)
}

// ApplyWithOptions is Apply with explicit control over rollback_on_error.
func (e *Engine) ApplyWithOptions(buf *CommandBuffer, rollbackOnError bool) CommandExecutionResult {
	return e.applyCommands(buf, rollbackOnError)
}
