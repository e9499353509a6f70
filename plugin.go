package ecs

import "sync"

// Plugin extends an Engine's behavior at install time. Install receives a
// PluginContext — a sandboxed facade over the engine rather than the engine
// itself — whose curated surface is complemented by one explicit escape
// hatch, PluginContext.Engine, returning the full engine (spec §4.10
// "Plugin host").
type Plugin interface {
	Name() string
	Install(ctx *PluginContext) error
}

// Uninstaller is an optional extension a Plugin implements when it needs to
// run cleanup when uninstalled.
type Uninstaller interface {
	Uninstall(ctx *PluginContext) error
}

// pluginHost tracks installed plugins, their extensions, and the shared
// prefab registry, all keyed by name rather than grafted onto the Engine
// value directly (spec §7 "extensions are stored in a keyed map rather than
// by adding fields to the engine value").
type pluginHost struct {
	mu         sync.Mutex
	engine     *Engine
	installed  map[string]Plugin
	extensions ResourceContainer
	prefabs    *prefabRegistry
}

func newPluginHost(engine *Engine) *pluginHost {
	return &pluginHost{
		engine:     engine,
		installed:  make(map[string]Plugin),
		extensions: newResourceContainer(),
		prefabs:    newPrefabRegistry(),
	}
}

// Install runs plugin's Install callback against a fresh PluginContext and
// records it. A duplicate install by name is a no-op, matching the spec's
// idempotent-install contract. A failing Install is logged and the plugin is
// not recorded.
func (h *pluginHost) Install(plugin Plugin) error {
	h.mu.Lock()
	if _, exists := h.installed[plugin.Name()]; exists {
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	ctx := &PluginContext{host: h, engine: h.engine}
	if err := plugin.Install(ctx); err != nil {
		h.engine.logger.Error("plugin install failed", "plugin", plugin.Name(), "err", err)
		return err
	}

	h.mu.Lock()
	h.installed[plugin.Name()] = plugin
	h.mu.Unlock()
	h.engine.events.Emit("plugin_installed", plugin.Name())
	return nil
}

// Uninstall calls the plugin's optional Uninstall hook (if it implements
// Uninstaller) and removes its record. Uninstalling an unknown name is a
// no-op.
func (h *pluginHost) Uninstall(name string) error {
	h.mu.Lock()
	plugin, ok := h.installed[name]
	h.mu.Unlock()
	if !ok {
		return nil
	}

	if u, ok := plugin.(Uninstaller); ok {
		ctx := &PluginContext{host: h, engine: h.engine}
		if err := u.Uninstall(ctx); err != nil {
			return err
		}
	}

	h.mu.Lock()
	delete(h.installed, name)
	h.mu.Unlock()
	return nil
}

// Get returns the installed plugin by name.
func (h *pluginHost) Get(name string) (Plugin, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.installed[name]
	return p, ok
}

// Has reports whether a plugin is currently installed under name.
func (h *pluginHost) Has(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.installed[name]
	return ok
}

// Extensions returns the names of every registered extension.
func (h *pluginHost) Extensions() []string {
	var out []string
	h.extensions.Range(func(name string, _ any) bool {
		out = append(out, name)
		return true
	})
	return out
}

// Extension returns a previously attached extension by name.
func (h *pluginHost) Extension(name string) (any, bool) {
	return h.extensions.Get(name)
}

// PluginContext is the sandboxed facade a Plugin's Install/Uninstall
// callback receives: a curated subset of the engine's public surface plus
// an escape hatch (spec §4.10).
type PluginContext struct {
	host   *pluginHost
	engine *Engine
}

// RegisterComponent registers a new component type, returning its TypeID.
func (c *PluginContext) RegisterComponent(name string, factory Factory) (TypeID, error) {
	return c.engine.components.RegisterComponent(name, factory)
}

// RegisterValidator installs a pre-insert validator for a component type.
func (c *PluginContext) RegisterValidator(id TypeID, v Validator) error {
	return c.engine.components.RegisterValidator(id, v)
}

// SetSingleton installs a singleton instance for id.
func (c *PluginContext) SetSingleton(id TypeID, instance any) (any, bool) {
	old, had := c.engine.components.SetSingleton(id, instance)
	c.engine.events.Emit("singleton_set", id)
	return old, had
}

// GetSingleton returns the current singleton instance for id, if any.
func (c *PluginContext) GetSingleton(id TypeID) (any, bool) {
	return c.engine.components.GetSingleton(id)
}

// HasSingleton reports whether a singleton is installed for id.
func (c *PluginContext) HasSingleton(id TypeID) bool {
	return c.engine.components.HasSingleton(id)
}

// RemoveSingleton clears the singleton for id, if any.
func (c *PluginContext) RemoveSingleton(id TypeID) (any, bool) {
	v, had := c.engine.components.RemoveSingleton(id)
	if had {
		c.engine.events.Emit("singleton_removed", id)
	}
	return v, had
}

// CreateSystem builds a System via NewSystem, scoped to this context only by
// convention (plugins still register it with a group through the engine's
// scheduler themselves).
func (c *PluginContext) CreateSystem(name string, run RunFunc, opts ...SystemOption) System {
	return NewSystem(name, run, opts...)
}

// CreateQuery compiles and registers a live query against the engine's
// query index.
func (c *PluginContext) CreateQuery(filter QueryFilter) *Query {
	return c.engine.queries.CreateQuery(filter)
}

// Prefabs exposes the prefab register/define/extend/variant_of surface.
func (c *PluginContext) Prefabs() *prefabRegistry { return c.host.prefabs }

// On subscribes to a named engine event.
func (c *PluginContext) On(name string, handler EventHandler) subscription {
	return c.engine.events.On(name, handler)
}

// Emit fires a named engine event.
func (c *PluginContext) Emit(name string, payload any) {
	c.engine.events.Emit(name, payload)
}

// Subscribe subscribes to a MessageBus topic.
func (c *PluginContext) Subscribe(topic string, handler MessageHandler) subscription {
	return c.engine.bus.Subscribe(topic, handler)
}

// Publish publishes a message on the MessageBus.
func (c *PluginContext) Publish(topic string, payload any) {
	c.engine.bus.Publish(topic, payload, c.engine.scheduler.TickIndex())
}

// Extend attaches a named extension accessible by every future caller
// holding a PluginContext or pluginHost reference, backed by the plugin
// host's own ResourceContainer (the same implementation as, but a separate
// instance from, the engine's named resources) (spec §4.10 "extend()
// keyed-extension map"). Duplicate extension names are rejected.
func (c *PluginContext) Extend(name string, api any) error {
	c.host.mu.Lock()
	defer c.host.mu.Unlock()
	if _, exists := c.host.extensions.Get(name); exists {
		return ErrDuplicateExtensionName
	}
	c.host.extensions.Set(name, api)
	return nil
}

// Logger returns the engine's configured logger.
func (c *PluginContext) Logger() Logger { return c.engine.logger }

// Engine is the plugin context's escape hatch to the full engine.
func (c *PluginContext) Engine() *Engine { return c.engine }

// prefabDef holds one prefab definition: the components and tags that
// Instantiate queues onto a spawned entity.
type prefabDef struct {
	components map[TypeID]any
	tags       []string
}

// prefabRegistry implements the named prefab register/define/extend/
// variant_of surface (spec §4.10/§6), grounded on the teacher's ref-counted
// shared-value interning technique (ecs/storage/shared.go) but reimplemented
// here as plain definition merging, since prefabs compose components rather
// than dedup interned values.
type prefabRegistry struct {
	mu   sync.Mutex
	defs map[string]*prefabDef
}

func newPrefabRegistry() *prefabRegistry {
	return &prefabRegistry{defs: make(map[string]*prefabDef)}
}

// Define registers a new named prefab from scratch. Redefining an existing
// name is rejected.
func (r *prefabRegistry) Define(name string, components map[TypeID]any, tags []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[name]; exists {
		return ErrPrefabAlreadyDefined
	}
	r.defs[name] = &prefabDef{components: cloneComponents(components), tags: append([]string(nil), tags...)}
	return nil
}

// Register is an alias for Define, named to match the spec's "prefab
// register" verb for callers that think of it as registering a template
// rather than authoring one.
func (r *prefabRegistry) Register(name string, components map[TypeID]any, tags []string) error {
	return r.Define(name, components, tags)
}

// Extend merges additional components/tags onto an existing prefab
// definition in place.
func (r *prefabRegistry) Extend(name string, components map[TypeID]any, tags []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	def, ok := r.defs[name]
	if !ok {
		return ErrUnknownPrefab
	}
	for t, v := range components {
		def.components[t] = v
	}
	def.tags = append(def.tags, tags...)
	return nil
}

// VariantOf defines a new prefab that starts from base's components/tags
// and layers overrides on top.
func (r *prefabRegistry) VariantOf(newName, base string, overrides map[TypeID]any, extraTags []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[newName]; exists {
		return ErrPrefabAlreadyDefined
	}
	baseDef, ok := r.defs[base]
	if !ok {
		return ErrUnknownPrefab
	}
	merged := cloneComponents(baseDef.components)
	for t, v := range overrides {
		merged[t] = v
	}
	tags := append([]string(nil), baseDef.tags...)
	tags = append(tags, extraTags...)
	r.defs[newName] = &prefabDef{components: merged, tags: tags}
	return nil
}

// Instantiate queues a spawn of name's prefab definition onto buf, returning
// the placeholder EntityRef.
func (r *prefabRegistry) Instantiate(buf *CommandBuffer, name string) (EntityRef, error) {
	r.mu.Lock()
	def, ok := r.defs[name]
	r.mu.Unlock()
	if !ok {
		return EntityRef{}, ErrUnknownPrefab
	}
	builder := buf.Spawn(name)
	for t, v := range def.components {
		builder.WithComponent(t, v)
	}
	for _, tag := range def.tags {
		builder.WithTag(tag)
	}
	return builder.Ref(), nil
}

func cloneComponents(src map[TypeID]any) map[TypeID]any {
	out := make(map[TypeID]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
