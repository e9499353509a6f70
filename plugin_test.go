package ecs

import "testing"

type recordingPlugin struct {
	name        string
	installed   int
	uninstalled int
	installErr  error
}

func (p *recordingPlugin) Name() string { return p.name }

func (p *recordingPlugin) Install(ctx *PluginContext) error {
	p.installed++
	if p.installErr != nil {
		return p.installErr
	}
	return ctx.Extend(p.name, p)
}

func (p *recordingPlugin) Uninstall(ctx *PluginContext) error {
	p.uninstalled++
	return nil
}

func TestPluginHostInstallIsIdempotent(t *testing.T) {
	e := NewEngine()
	p := &recordingPlugin{name: "stats"}

	if err := e.Plugins().Install(p); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if err := e.Plugins().Install(p); err != nil {
		t.Fatalf("second Install should be a no-op, got %v", err)
	}
	if p.installed != 1 {
		t.Fatalf("expected Install called exactly once, got %d", p.installed)
	}
	if !e.Plugins().Has("stats") {
		t.Fatalf("expected plugin recorded as installed")
	}
}

func TestPluginHostUninstallInvokesHook(t *testing.T) {
	e := NewEngine()
	p := &recordingPlugin{name: "stats"}
	if err := e.Plugins().Install(p); err != nil {
		t.Fatalf("Install: %v", err)
	}

	if err := e.Plugins().Uninstall("stats"); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	if p.uninstalled != 1 {
		t.Fatalf("expected Uninstall hook invoked once, got %d", p.uninstalled)
	}
	if e.Plugins().Has("stats") {
		t.Fatalf("expected plugin removed after uninstall")
	}
}

func TestPluginHostUninstallUnknownNameIsNoop(t *testing.T) {
	e := NewEngine()
	if err := e.Plugins().Uninstall("ghost"); err != nil {
		t.Fatalf("expected no-op for unknown plugin, got %v", err)
	}
}

type doubleExtendPlugin struct{ secondErr error }

func (doubleExtendPlugin) Name() string { return "double" }

func (p *doubleExtendPlugin) Install(ctx *PluginContext) error {
	if err := ctx.Extend("shared", 1); err != nil {
		return err
	}
	p.secondErr = ctx.Extend("shared", 2)
	return nil
}

func TestPluginContextExtendRejectsDuplicateName(t *testing.T) {
	e := NewEngine()
	p := &doubleExtendPlugin{}
	if err := e.Plugins().Install(p); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if p.secondErr != ErrDuplicateExtensionName {
		t.Fatalf("expected ErrDuplicateExtensionName on re-extend, got %v", p.secondErr)
	}
	v, ok := e.Plugins().Extension("shared")
	if !ok || v != 1 {
		t.Fatalf("expected first extension value retained, got %v %v", v, ok)
	}
}

func TestPluginHostInstallFailurePropagatesAndDoesNotRecord(t *testing.T) {
	e := NewEngine()
	p := &recordingPlugin{name: "broken", installErr: ErrUnknownPrefab}

	if err := e.Plugins().Install(p); err == nil {
		t.Fatalf("expected install error to propagate")
	}
	if e.Plugins().Has("broken") {
		t.Fatalf("expected failed install to not be recorded")
	}
}

func TestPrefabRegistryDefineInstantiateAndVariant(t *testing.T) {
	e := NewEngine()
	typ, err := e.Components().RegisterComponent("health", func(args []Value) (any, error) {
		return struct{ HP int }{HP: 10}, nil
	})
	if err != nil {
		t.Fatalf("RegisterComponent: %v", err)
	}

	prefabs := e.Plugins().prefabs
	if err := prefabs.Define("grunt", map[TypeID]any{typ: struct{ HP int }{HP: 10}}, []string{"enemy"}); err != nil {
		t.Fatalf("Define: %v", err)
	}
	if err := prefabs.Define("grunt", nil, nil); err != ErrPrefabAlreadyDefined {
		t.Fatalf("expected ErrPrefabAlreadyDefined, got %v", err)
	}

	if err := prefabs.VariantOf("elite", "grunt", map[TypeID]any{typ: struct{ HP int }{HP: 30}}, []string{"elite"}); err != nil {
		t.Fatalf("VariantOf: %v", err)
	}

	buf := NewCommandBuffer()
	ref, err := prefabs.Instantiate(buf, "elite")
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	if ref.kind != entityRefPlaceholder {
		t.Fatalf("expected placeholder ref from Instantiate")
	}

	result := e.Apply(buf)
	if result.RolledBack {
		t.Fatalf("expected instantiate commands to apply cleanly, errors=%v", result.Errors)
	}
	if e.Entities().Count() != 1 {
		t.Fatalf("expected one entity spawned from prefab, count=%d", e.Entities().Count())
	}
}

func TestPrefabRegistryExtendUnknownNameFails(t *testing.T) {
	prefabs := newPrefabRegistry()
	if err := prefabs.Extend("missing", nil, nil); err != ErrUnknownPrefab {
		t.Fatalf("expected ErrUnknownPrefab, got %v", err)
	}
}
