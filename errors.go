package ecs

import "errors"

var (
	// ErrComponentAlreadyRegistered indicates an attempt to register the same component type twice.
	ErrComponentAlreadyRegistered = errors.New("ecs: component already registered")
	// ErrComponentNotRegistered signals lookup on an unknown component type.
	ErrComponentNotRegistered = errors.New("ecs: component not registered")
	// ErrNilValidator is returned when a validator registration receives a nil function.
	ErrNilValidator = errors.New("ecs: nil component validator")
	// ErrInvalidPoolSize is returned when a component pool is registered with a non-positive max size.
	ErrInvalidPoolSize = errors.New("ecs: invalid component pool size")
	// ErrComponentRejected is returned when a validator rejects a value before insertion.
	ErrComponentRejected = errors.New("ecs: component rejected by validator")

	// ErrEntityNotFound indicates a command or query referenced an entity that does not exist.
	ErrEntityNotFound = errors.New("ecs: entity not found")
	// ErrEntityMarkedForDeletion indicates an operation targeted an entity already queued for deletion.
	ErrEntityMarkedForDeletion = errors.New("ecs: entity marked for deletion")
	// ErrPlaceholderUnresolved indicates a command referenced a spawn placeholder that never resolved.
	ErrPlaceholderUnresolved = errors.New("ecs: placeholder entity unresolved")
	// ErrCyclicHierarchy indicates a set_parent call would make an entity its own ancestor.
	ErrCyclicHierarchy = errors.New("ecs: cyclic parent/child assignment")

	// ErrDuplicateSystemName indicates two systems were registered under the same name.
	ErrDuplicateSystemName = errors.New("ecs: duplicate system name")
	// ErrDuplicateGroupName indicates two groups were registered under the same name.
	ErrDuplicateGroupName = errors.New("ecs: duplicate group name")
	// ErrUnknownGroup indicates a system referenced a group that was never created.
	ErrUnknownGroup = errors.New("ecs: unknown system group")
	// ErrCircularDependency indicates run_after/run_before declarations formed a cycle.
	ErrCircularDependency = errors.New("ecs: circular system dependency")
	// ErrUnknownSystem indicates an operation referenced a system that is not registered.
	ErrUnknownSystem = errors.New("ecs: unknown system")

	// ErrTransactionAlreadyOpen indicates begin_transaction was called while one was already open.
	ErrTransactionAlreadyOpen = errors.New("ecs: transaction already open")
	// ErrNoTransaction indicates commit/rollback was called with no open transaction.
	ErrNoTransaction = errors.New("ecs: no open transaction")

	// ErrDuplicateExtensionName indicates a plugin tried to register an extension name twice.
	ErrDuplicateExtensionName = errors.New("ecs: duplicate plugin extension name")
	// ErrUnknownPrefab indicates a prefab operation referenced an undefined prefab.
	ErrUnknownPrefab = errors.New("ecs: unknown prefab")
	// ErrPrefabAlreadyDefined indicates a prefab was registered under an existing name.
	ErrPrefabAlreadyDefined = errors.New("ecs: prefab already defined")

	// ErrSnapshotIndexOutOfRange indicates a snapshot lookup index has no corresponding entry.
	ErrSnapshotIndexOutOfRange = errors.New("ecs: snapshot index out of range")

	// ErrCircuitOpen indicates a system's circuit breaker is open and the system was skipped.
	ErrCircuitOpen = errors.New("ecs: circuit breaker open")
	// ErrSystemDisabled indicates a system was disabled by the error-recovery strategy.
	ErrSystemDisabled = errors.New("ecs: system disabled")
)
