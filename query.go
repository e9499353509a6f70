package ecs

import (
	"sync"
	"time"

	roaring "github.com/RoaringBitmap/roaring/v2"
)

// QueryFilter describes the predicate a Query compiles and maintains (spec
// §3/§4.4): every type in All must be present, at least one of Any (if
// non-empty) must be present, none of None may be present, every tag in
// Tags must be present, and no tag in WithoutTags may be present.
type QueryFilter struct {
	All         []TypeID
	Any         []TypeID
	None        []TypeID
	Tags        []string
	WithoutTags []string
}

// QueryStats tracks the execution statistics named in spec §4.4.
type QueryStats struct {
	Executions      int64
	TotalTime       time.Duration
	LastMatchCount  int
	LastCacheHit    bool
}

// AvgTime returns the mean execution duration, or zero if the query has
// never run.
func (s QueryStats) AvgTime() time.Duration {
	if s.Executions == 0 {
		return 0
	}
	return s.TotalTime / time.Duration(s.Executions)
}

// Query is a compiled filter with a live, incrementally maintained match
// set (spec §4.4).
type Query struct {
	mu sync.Mutex

	id     uint64
	filter QueryFilter

	allBM, anyBM, noneBM *roaring.Bitmap
	tagSet               map[string]struct{}
	withoutTagSet        map[string]struct{}

	matches map[Identity]struct{}

	// archetypeMatch caches the outcome of testing an archetype's signature
	// against the type filter, so repeated entity updates within the same
	// archetype only re-test tags (spec §4.4 "re-evaluates tag membership
	// only").
	archetypeMatch map[archetypeID]bool

	stats QueryStats
}

func compileFilter(f QueryFilter) (*roaring.Bitmap, *roaring.Bitmap, *roaring.Bitmap, map[string]struct{}, map[string]struct{}) {
	all := roaring.New()
	for _, t := range f.All {
		all.Add(uint32(t))
	}
	any := roaring.New()
	for _, t := range f.Any {
		any.Add(uint32(t))
	}
	none := roaring.New()
	for _, t := range f.None {
		none.Add(uint32(t))
	}
	tags := make(map[string]struct{}, len(f.Tags))
	for _, t := range f.Tags {
		tags[t] = struct{}{}
	}
	without := make(map[string]struct{}, len(f.WithoutTags))
	for _, t := range f.WithoutTags {
		without[t] = struct{}{}
	}
	return all, any, none, tags, without
}

// matchesArchetypeSignature tests the type-filter portion only.
func (q *Query) matchesArchetypeSignature(sig *roaring.Bitmap) bool {
	if q.allBM.GetCardinality() > 0 {
		if sig.AndCardinality(q.allBM) != q.allBM.GetCardinality() {
			return false
		}
	}
	if q.anyBM.GetCardinality() > 0 {
		if sig.AndCardinality(q.anyBM) == 0 {
			return false
		}
	}
	if q.noneBM.GetCardinality() > 0 {
		if sig.AndCardinality(q.noneBM) > 0 {
			return false
		}
	}
	return true
}

func (q *Query) matchesTags(tags map[string]struct{}) bool {
	for t := range q.tagSet {
		if _, ok := tags[t]; !ok {
			return false
		}
	}
	for t := range q.withoutTagSet {
		if _, ok := tags[t]; ok {
			return false
		}
	}
	return true
}

// Matches returns a snapshot of the query's current match set and records
// one execution in the statistics.
func (q *Query) Matches() []Identity {
	start := time.Now()
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Identity, 0, len(q.matches))
	for id := range q.matches {
		out = append(out, id)
	}
	q.stats.Executions++
	q.stats.TotalTime += time.Since(start)
	q.stats.LastMatchCount = len(out)
	q.stats.LastCacheHit = true
	return out
}

// Len reports the current match set size without copying it.
func (q *Query) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.matches)
}

// Stats returns a snapshot of the query's execution statistics.
func (q *Query) Stats() QueryStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// QueryIndex compiles filters and keeps every registered Query's match set
// consistent with the current world state (spec §4.4).
type QueryIndex struct {
	mu sync.Mutex

	archetypeMode bool
	archetypes    *ArchetypeStore
	locator       entityLocator
	legacy        *legacyStorageProvider
	entityTags    func(Identity) (map[string]struct{}, bool)

	queries map[uint64]*Query
	nextID  uint64

	inTransaction  bool
	pendingUpdates map[Identity]struct{}

	// systemQueries caches the compiled Query bound to each query-bound
	// system's name, so a system's filter is compiled once at first run
	// rather than recompiled every tick (spec §4.5 act binding).
	systemQueries map[string]*Query
}

func newQueryIndex(archetypeMode bool, archetypes *ArchetypeStore, locator entityLocator, legacy *legacyStorageProvider, entityTags func(Identity) (map[string]struct{}, bool)) *QueryIndex {
	return &QueryIndex{
		archetypeMode:  archetypeMode,
		archetypes:     archetypes,
		locator:        locator,
		legacy:         legacy,
		entityTags:     entityTags,
		queries:        make(map[uint64]*Query),
		pendingUpdates: make(map[Identity]struct{}),
		systemQueries:  make(map[string]*Query),
	}
}

// querySystemCache returns the Query compiled for a query-bound system's
// name, compiling and caching it against filter on first use.
func (idx *QueryIndex) querySystemCache(name string, filter QueryFilter) *Query {
	idx.mu.Lock()
	q, ok := idx.systemQueries[name]
	idx.mu.Unlock()
	if ok {
		return q
	}
	q = idx.CreateQuery(filter)
	idx.mu.Lock()
	idx.systemQueries[name] = q
	idx.mu.Unlock()
	return q
}

// CreateQuery compiles filter and registers the resulting Query, seeding its
// match set from the current world state.
func (idx *QueryIndex) CreateQuery(filter QueryFilter) *Query {
	all, any, none, tags, without := compileFilter(filter)
	idx.mu.Lock()
	idx.nextID++
	q := &Query{
		id:             idx.nextID,
		filter:         filter,
		allBM:          all,
		anyBM:          any,
		noneBM:         none,
		tagSet:         tags,
		withoutTagSet:  without,
		matches:        make(map[Identity]struct{}),
		archetypeMatch: make(map[archetypeID]bool),
	}
	idx.queries[q.id] = q
	idx.mu.Unlock()

	if idx.archetypeMode && idx.archetypes != nil {
		for _, arch := range idx.archetypes.All() {
			for _, identity := range arch.Entities() {
				idx.evaluateArchetypeQuery(q, arch, identity)
			}
		}
	} else if idx.legacy != nil {
		// Legacy mode seeds lazily: callers must still call Update for each
		// live entity once after construction (mirrors the teacher's
		// "queries maintain per-entity membership" note in spec §4.4).
	}
	return q
}

// RemoveQuery unregisters a query so it no longer receives updates.
func (idx *QueryIndex) RemoveQuery(q *Query) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.queries, q.id)
}

// Update re-tests a single entity against every registered query. If a
// transaction is open, the entity is buffered instead (spec §4.4 "pending
// updates").
func (idx *QueryIndex) Update(identity Identity) {
	idx.mu.Lock()
	if idx.inTransaction {
		idx.pendingUpdates[identity] = struct{}{}
		idx.mu.Unlock()
		return
	}
	idx.mu.Unlock()
	idx.sweepOne(identity)
}

func (idx *QueryIndex) sweepOne(identity Identity) {
	idx.mu.Lock()
	queries := make([]*Query, 0, len(idx.queries))
	for _, q := range idx.queries {
		queries = append(queries, q)
	}
	idx.mu.Unlock()

	if idx.archetypeMode && idx.archetypes != nil {
		archID, _, ok := idx.locator.location(identity)
		if !ok {
			for _, q := range queries {
				idx.removeMatch(q, identity)
			}
			return
		}
		arch, ok := idx.archetypes.Archetype(archID)
		if !ok {
			return
		}
		for _, q := range queries {
			idx.evaluateArchetypeQuery(q, arch, identity)
		}
		return
	}

	for _, q := range queries {
		idx.evaluateLegacyQuery(q, identity)
	}
}

func (idx *QueryIndex) evaluateArchetypeQuery(q *Query, arch *archetype, identity Identity) {
	q.mu.Lock()
	sigOK, cached := q.archetypeMatch[arch.id]
	if !cached {
		sigOK = q.matchesArchetypeSignature(arch.signature)
		q.archetypeMatch[arch.id] = sigOK
	}
	q.mu.Unlock()

	if !sigOK {
		idx.removeMatch(q, identity)
		return
	}

	tags, _ := idx.entityTagsOf(identity)
	q.mu.Lock()
	if q.matchesTags(tags) {
		q.matches[identity] = struct{}{}
	} else {
		delete(q.matches, identity)
	}
	q.mu.Unlock()
}

func (idx *QueryIndex) evaluateLegacyQuery(q *Query, identity Identity) {
	if idx.legacy == nil {
		return
	}
	hasAll := true
	for _, t := range q.filter.All {
		if !idx.legacy.Has(t, identity) {
			hasAll = false
			break
		}
	}
	hasAny := len(q.filter.Any) == 0
	for _, t := range q.filter.Any {
		if idx.legacy.Has(t, identity) {
			hasAny = true
			break
		}
	}
	hasNone := true
	for _, t := range q.filter.None {
		if idx.legacy.Has(t, identity) {
			hasNone = false
			break
		}
	}

	tags, _ := idx.entityTagsOf(identity)
	ok := hasAll && hasAny && hasNone
	q.mu.Lock()
	if ok && q.matchesTags(tags) {
		q.matches[identity] = struct{}{}
	} else {
		delete(q.matches, identity)
	}
	q.mu.Unlock()
}

func (idx *QueryIndex) entityTagsOf(identity Identity) (map[string]struct{}, bool) {
	if idx.entityTags == nil {
		return nil, false
	}
	return idx.entityTags(identity)
}

func (idx *QueryIndex) removeMatch(q *Query, identity Identity) {
	q.mu.Lock()
	delete(q.matches, identity)
	q.mu.Unlock()
}

// Evict drops identity from every query's match set, used before an entity
// is reclaimed (spec §3 "deletion of an entity must evict it from all match
// sets before reclamation").
func (idx *QueryIndex) Evict(identity Identity) {
	idx.mu.Lock()
	queries := make([]*Query, 0, len(idx.queries))
	for _, q := range idx.queries {
		queries = append(queries, q)
	}
	delete(idx.pendingUpdates, identity)
	idx.mu.Unlock()
	for _, q := range queries {
		idx.removeMatch(q, identity)
	}
}

// BeginTransaction opens a batching transaction; structural updates during
// it are buffered instead of swept immediately.
func (idx *QueryIndex) BeginTransaction() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.inTransaction {
		return ErrTransactionAlreadyOpen
	}
	idx.inTransaction = true
	idx.pendingUpdates = make(map[Identity]struct{})
	return nil
}

// CommitTransaction sweeps every buffered entity through the index once.
func (idx *QueryIndex) CommitTransaction() error {
	idx.mu.Lock()
	if !idx.inTransaction {
		idx.mu.Unlock()
		return ErrNoTransaction
	}
	pending := idx.pendingUpdates
	idx.pendingUpdates = make(map[Identity]struct{})
	idx.inTransaction = false
	idx.mu.Unlock()

	for identity := range pending {
		idx.sweepOne(identity)
	}
	return nil
}

// RollbackTransaction discards buffered updates without sweeping them; any
// component/entity mutations already applied remain (spec §5).
func (idx *QueryIndex) RollbackTransaction() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.inTransaction {
		return ErrNoTransaction
	}
	idx.inTransaction = false
	idx.pendingUpdates = make(map[Identity]struct{})
	return nil
}

// IsInTransaction reports whether a query-index transaction is open.
func (idx *QueryIndex) IsInTransaction() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.inTransaction
}
