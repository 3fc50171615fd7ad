// Package matchmaker selects the next comparison group from the population,
// balancing exploration of unrated entities against refinement of the
// current tier, with anti-repeat memory and an explicit request path.
package matchmaker

import (
	"context"
	"math/rand"
	"sort"
	"sync"

	"github.com/okian/versus/internal/adapters/repository"
	"github.com/okian/versus/internal/domain/catalog"
	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/rating"
	"github.com/okian/versus/internal/domain/recency"
	"github.com/okian/versus/internal/domain/refine"
	"github.com/okian/versus/pkg/metrics"
)

// Strategy labels attached to issued groups.
const (
	StrategyPending            = "pending_request"
	StrategyRefinement         = "refinement_queue"
	StrategyIntroduceUnrated   = "introduce_unrated"
	StrategyRefineTopN         = "refine_top_n"
	StrategyBubbleChallenge    = "bubble_challenge"
	StrategyBottomConfirmation = "bottom_confirmation"
	StrategyRandomFallback     = "random_fallback"
)

// Default matchmaking configuration constants.
const (
	defaultTierSize           = 50
	defaultBootstrapLimit     = 25
	defaultBootstrapSize      = 15
	defaultChallengerMinSigma = 4.0
	defaultRandomSeed         = 42

	topUncertainPoolSize  = 5  // primary candidates in refine-top-N
	bubbleNearWindow      = 20 // ranks N+1..N+20 always challenge
	bubbleFarWindow       = 50 // ranks N+21..N+50 challenge when uncertain
	gatekeeperWindow      = 5  // gatekeeper drawn from ranks N-5..N
	settledMinComparisons = 3  // bottom entity considered settled
	bottomVsBottomPercent = 80 // else an upset probe against the top-N
)

// Matchmaker produces comparison groups. Deterministic given its inputs
// and the injected RNG; a session owns exactly one instance.
type Matchmaker struct {
	mu sync.Mutex

	catalog catalog.Provider
	store   repository.Store
	updater *rating.Updater
	memory  *recency.Memory
	queue   *refine.Queue

	rng    *rand.Rand
	filter catalog.Filter

	tierSize           int
	weights            [4]int // introduce, refine, bubble, bottom (percent)
	bootstrapLimit     int
	bootstrapSize      int
	challengerMinSigma float64

	selections int
	bootstrap  []model.EntityID
	pending    *model.EntityID
	issued     *model.RefinementTask
}

// Option applies a configuration option to the Matchmaker.
type Option func(*Matchmaker)

// WithTierSize sets the active top-N tier scope.
func WithTierSize(n int) Option {
	return func(m *Matchmaker) {
		if n > 0 {
			m.tierSize = n
		}
	}
}

// WithStrategyWeights sets the percent bands for the weighted roll:
// introduce-unrated, refine-top-N, bubble-challenge, bottom-confirmation.
func WithStrategyWeights(introduce, refineTop, bubble, bottom int) Option {
	return func(m *Matchmaker) {
		if introduce+refineTop+bubble+bottom == 100 {
			m.weights = [4]int{introduce, refineTop, bubble, bottom}
		}
	}
}

// WithBootstrap sets how many selections stay inside the bootstrap subset
// and how large the subset is.
func WithBootstrap(limit, size int) Option {
	return func(m *Matchmaker) {
		if limit >= 0 && size > 0 {
			m.bootstrapLimit = limit
			m.bootstrapSize = size
		}
	}
}

// WithRNG injects the random source. Randomness is the engine's only
// non-determinism, so tests pass a seeded source.
func WithRNG(rng *rand.Rand) Option {
	return func(m *Matchmaker) {
		if rng != nil {
			m.rng = rng
		}
	}
}

// WithFilter restricts the candidate population.
func WithFilter(filter catalog.Filter) Option {
	return func(m *Matchmaker) {
		m.filter = filter
	}
}

// WithChallengerMinSigma sets the uncertainty threshold that admits far
// challengers (ranks N+21..N+50) into bubble-challenge.
func WithChallengerMinSigma(sigma float64) Option {
	return func(m *Matchmaker) {
		if sigma > 0 {
			m.challengerMinSigma = sigma
		}
	}
}

// New creates a Matchmaker with configuration options.
func New(cat catalog.Provider, store repository.Store, updater *rating.Updater,
	memory *recency.Memory, queue *refine.Queue, opts ...Option) *Matchmaker {
	m := &Matchmaker{
		catalog:            cat,
		store:              store,
		updater:            updater,
		memory:             memory,
		queue:              queue,
		rng:                rand.New(rand.NewSource(defaultRandomSeed)), //nolint:gosec // deterministic seed for reproducible selection
		tierSize:           defaultTierSize,
		weights:            [4]int{15, 50, 20, 15},
		bootstrapLimit:     defaultBootstrapLimit,
		bootstrapSize:      defaultBootstrapSize,
		challengerMinSigma: defaultChallengerMinSigma,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// RequestComparison flags an entity for immediate comparison. The flag is
// consumed by the next SelectNextGroup call.
func (m *Matchmaker) RequestComparison(id model.EntityID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = &id
}

// NotifyRecorded tells the matchmaker a comparison was recorded. If the
// group came from the refinement queue, its task is popped now, not at
// selection time, so an abandoned selection does not drop the task.
func (m *Matchmaker) NotifyRecorded(group model.ComparisonGroup) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.issued == nil || len(group.Members) != 2 {
		return
	}
	if model.PairKey(group.Members[0], group.Members[1]) == m.issued.Key() {
		m.queue.Pop()
		m.issued = nil
	}
}

// Reset clears session-scoped selection state (bootstrap subset, counters,
// pending flag). The recency memory and queue are reset by their owners.
func (m *Matchmaker) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selections = 0
	m.bootstrap = nil
	m.pending = nil
	m.issued = nil
}

// SelectNextGroup returns the next comparison group of the given size.
func (m *Matchmaker) SelectNextGroup(ctx context.Context, groupSize int) (model.ComparisonGroup, error) {
	if groupSize != 2 && groupSize != 3 {
		return model.ComparisonGroup{}, ErrInvalidGroupSize
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	full := m.unfrozenPopulation(ctx)
	if len(full) < groupSize {
		metrics.RecordSelectionFailure()
		return model.ComparisonGroup{}, ErrInsufficientPopulation
	}

	pool := m.bootstrapPool(full, groupSize)

	group, ok := m.selectLocked(ctx, pool, groupSize)
	if !ok {
		metrics.RecordSelectionFailure()
		return model.ComparisonGroup{}, ErrInsufficientPopulation
	}

	// Never re-issue the exact previous group unless it is the only one.
	// Pending and refinement groups are exempt: an abandoned selection must
	// come back unchanged until its comparison is recorded.
	if group.Strategy != StrategyPending && group.Strategy != StrategyRefinement &&
		m.memory.IsLastGroup(group) && len(pool) > groupSize {
		group = m.avoidRepeat(group, pool)
	}

	m.memory.RememberGroup(group)
	m.selections++
	metrics.RecordGroupSelected(group.Strategy)
	metrics.UpdateBootstrapActive(m.selections < m.bootstrapLimit)

	return group, nil
}

// unfrozenPopulation lists the population minus entities frozen for the
// active tier.
func (m *Matchmaker) unfrozenPopulation(ctx context.Context) []model.EntityID {
	all := m.catalog.ListPopulation(m.filter)
	out := make([]model.EntityID, 0, len(all))
	for _, id := range all {
		if !m.store.IsFrozen(ctx, id, m.tierSize) {
			out = append(out, id)
		}
	}
	return out
}

// bootstrapPool restricts early selections to a fixed random subset so the
// first comparisons build signal quickly before opening to everyone.
func (m *Matchmaker) bootstrapPool(full []model.EntityID, groupSize int) []model.EntityID {
	if m.selections >= m.bootstrapLimit || len(full) <= m.bootstrapSize {
		return full
	}

	if m.bootstrap == nil {
		shuffled := make([]model.EntityID, len(full))
		copy(shuffled, full)
		m.rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		m.bootstrap = shuffled[:m.bootstrapSize]
	}

	known := make(map[model.EntityID]struct{}, len(full))
	for _, id := range full {
		known[id] = struct{}{}
	}
	pool := make([]model.EntityID, 0, len(m.bootstrap))
	for _, id := range m.bootstrap {
		if _, ok := known[id]; ok {
			pool = append(pool, id)
		}
	}
	if len(pool) < groupSize {
		return full
	}
	return pool
}

func (m *Matchmaker) selectLocked(ctx context.Context, pool []model.EntityID, groupSize int) (model.ComparisonGroup, bool) {
	// 1. Explicit pending request.
	if g, ok := m.tryPending(ctx, pool, groupSize); ok {
		return g, true
	}

	// 2. Refinement queue head.
	if g, ok := m.tryRefinement(pool); ok {
		return g, true
	}

	// 3. Weighted strategy roll, falling through on failure.
	if g, ok := m.tryStrategies(ctx, pool, groupSize); ok {
		return g, true
	}

	// 4. Random fallback.
	return m.randomFallback(pool, groupSize), true
}

func (m *Matchmaker) tryPending(ctx context.Context, pool []model.EntityID, groupSize int) (model.ComparisonGroup, bool) {
	if m.pending == nil {
		return model.ComparisonGroup{}, false
	}
	primary := *m.pending
	m.pending = nil // consumed either way

	if !contains(pool, primary) {
		return model.ComparisonGroup{}, false
	}

	ranked := m.rank(ctx, pool)
	var opponent model.EntityID
	var found bool

	if m.store.Get(ctx, primary).Comparisons > 0 {
		opponent, found = m.closestConservative(ctx, ranked, primary)
	} else {
		opponent, found = m.pickUnrated(ctx, pool, primary)
		if !found {
			opponent, found = m.highestUncertaintyBottom(ranked, primary)
		}
	}
	if !found {
		opponent, found = m.randomOther(pool, primary)
	}
	if !found {
		return model.ComparisonGroup{}, false
	}

	members := []model.EntityID{primary, opponent}
	members = m.extendGroup(ctx, members, pool, groupSize)
	return model.ComparisonGroup{Members: members, Strategy: StrategyPending}, true
}

func (m *Matchmaker) tryRefinement(pool []model.EntityID) (model.ComparisonGroup, bool) {
	known := make(map[model.EntityID]struct{}, len(pool))
	for _, id := range pool {
		known[id] = struct{}{}
	}
	task := m.queue.PeekNext(func(id model.EntityID) bool {
		if _, ok := known[id]; ok {
			return true
		}
		// Ids outside the bootstrap subset still resolve if cataloged.
		return m.catalog.Lookup(id) != nil
	})
	if task == nil {
		return model.ComparisonGroup{}, false
	}

	m.issued = task
	return model.ComparisonGroup{
		Members:  []model.EntityID{task.Primary, task.Opponent},
		Strategy: StrategyRefinement,
	}, true
}

func (m *Matchmaker) tryStrategies(ctx context.Context, pool []model.EntityID, groupSize int) (model.ComparisonGroup, bool) {
	type strategyFn struct {
		name string
		fn   func(ctx context.Context, pool []model.EntityID) []model.EntityID
	}
	ordered := []strategyFn{
		{StrategyIntroduceUnrated, m.introduceUnrated},
		{StrategyRefineTopN, m.refineTopN},
		{StrategyBubbleChallenge, m.bubbleChallenge},
		{StrategyBottomConfirmation, m.bottomConfirmation},
	}

	// Roll once, then fall through the remaining strategies in order.
	roll := m.rng.Intn(100)
	start := 0
	cumulative := 0
	for i, w := range m.weights {
		cumulative += w
		if roll < cumulative {
			start = i
			break
		}
	}

	for off := 0; off < len(ordered); off++ {
		s := ordered[(start+off)%len(ordered)]
		if members := s.fn(ctx, pool); members != nil {
			members = m.extendGroup(ctx, members, pool, groupSize)
			if len(members) >= 2 {
				return model.ComparisonGroup{Members: members, Strategy: s.name}, true
			}
		}
	}
	return model.ComparisonGroup{}, false
}

// introduceUnrated pairs two unrated entities, or one unrated entity with
// a high-uncertainty bottom-tier opponent.
func (m *Matchmaker) introduceUnrated(ctx context.Context, pool []model.EntityID) []model.EntityID {
	var unrated []model.EntityID
	for _, id := range pool {
		if m.store.Get(ctx, id).Comparisons == 0 {
			unrated = append(unrated, id)
		}
	}
	if len(unrated) == 0 {
		return nil
	}

	// Prefer candidates not recently shown.
	fresh := m.preferUnseen(unrated)
	primary := fresh[m.rng.Intn(len(fresh))]

	if len(unrated) >= 2 {
		if opp, ok := m.randomOther(unrated, primary); ok {
			return []model.EntityID{primary, opp}
		}
	}
	if opp, ok := m.highestUncertaintyBottom(m.rank(ctx, pool), primary); ok {
		return []model.EntityID{primary, opp}
	}
	return nil
}

// refineTopN compares a high-uncertainty member of the current top-N with
// its closest neighbor by mean.
func (m *Matchmaker) refineTopN(ctx context.Context, pool []model.EntityID) []model.EntityID {
	ranked := m.rank(ctx, pool)
	top := topSlice(ranked, m.tierSize)
	if len(top) < 2 {
		return nil
	}

	// Primary: random among the top 5 by uncertainty.
	byUncertainty := make([]scored, len(top))
	copy(byUncertainty, top)
	sort.Slice(byUncertainty, func(i, j int) bool {
		if byUncertainty[i].rec.Uncertainty != byUncertainty[j].rec.Uncertainty {
			return byUncertainty[i].rec.Uncertainty > byUncertainty[j].rec.Uncertainty
		}
		return byUncertainty[i].id < byUncertainty[j].id
	})
	n := topUncertainPoolSize
	if n > len(byUncertainty) {
		n = len(byUncertainty)
	}
	primary := byUncertainty[m.rng.Intn(n)]

	// Opponent: closest mean among the remaining top-N.
	var best *scored
	for i := range top {
		if top[i].id == primary.id {
			continue
		}
		if best == nil || absDiff(top[i].rec.Mean, primary.rec.Mean) < absDiff(best.rec.Mean, primary.rec.Mean) {
			c := top[i]
			best = &c
		}
	}
	if best == nil {
		return nil
	}
	return []model.EntityID{primary.id, best.id}
}

// bubbleChallenge pits the most uncertain entity just outside the top-N
// against a gatekeeper from the bottom of the top-N.
func (m *Matchmaker) bubbleChallenge(ctx context.Context, pool []model.EntityID) []model.EntityID {
	ranked := m.rank(ctx, pool)
	if len(ranked) <= m.tierSize {
		return nil
	}

	var challengers []scored
	for i := m.tierSize; i < len(ranked) && i < m.tierSize+bubbleFarWindow; i++ {
		near := i < m.tierSize+bubbleNearWindow
		if near || ranked[i].rec.Uncertainty > m.challengerMinSigma {
			challengers = append(challengers, ranked[i])
		}
	}
	if len(challengers) == 0 {
		return nil
	}
	challenger := challengers[0]
	for _, c := range challengers[1:] {
		if c.rec.Uncertainty > challenger.rec.Uncertainty {
			challenger = c
		}
	}

	top := topSlice(ranked, m.tierSize)
	lo := len(top) - gatekeeperWindow - 1
	if lo < 0 {
		lo = 0
	}
	gatekeepers := top[lo:]
	gatekeeper := gatekeepers[m.rng.Intn(len(gatekeepers))]

	return []model.EntityID{challenger.id, gatekeeper.id}
}

// bottomConfirmation re-tests a settled bottom-tier entity, usually against
// a peer, occasionally against the top-N as an upset probe.
func (m *Matchmaker) bottomConfirmation(ctx context.Context, pool []model.EntityID) []model.EntityID {
	ranked := m.rank(ctx, pool)
	if len(ranked) <= m.tierSize {
		return nil
	}
	bottom := ranked[m.tierSize:]

	var settled []scored
	for _, s := range bottom {
		if s.rec.Comparisons >= settledMinComparisons {
			settled = append(settled, s)
		}
	}
	if len(settled) == 0 {
		return nil
	}
	primary := settled[m.rng.Intn(len(settled))]

	if m.rng.Intn(100) < bottomVsBottomPercent && len(bottom) >= 2 {
		ids := make([]model.EntityID, 0, len(bottom))
		for _, s := range bottom {
			if s.id != primary.id {
				ids = append(ids, s.id)
			}
		}
		if len(ids) > 0 {
			return []model.EntityID{primary.id, ids[m.rng.Intn(len(ids))]}
		}
	}

	top := topSlice(ranked, m.tierSize)
	if len(top) == 0 {
		return nil
	}
	probe := top[m.rng.Intn(len(top))]
	return []model.EntityID{primary.id, probe.id}
}

// randomFallback filters recent individuals, progressively relaxing the
// filter until a group can be formed.
func (m *Matchmaker) randomFallback(pool []model.EntityID, groupSize int) model.ComparisonGroup {
	candidates := m.filterRecent(pool)
	if len(candidates) < groupSize {
		m.memory.ForgetOldestIDs(m.memory.IDCount() / 2)
		candidates = m.filterRecent(pool)
	}
	if len(candidates) < groupSize {
		m.memory.ClearIDs()
		candidates = pool
	}

	shuffled := make([]model.EntityID, len(candidates))
	copy(shuffled, candidates)
	m.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return model.ComparisonGroup{
		Members:  shuffled[:groupSize],
		Strategy: StrategyRandomFallback,
	}
}

// avoidRepeat swaps one member for an entity outside the group, preferring
// unseen candidates, so the previous group is never issued twice in a row.
func (m *Matchmaker) avoidRepeat(group model.ComparisonGroup, pool []model.EntityID) model.ComparisonGroup {
	for _, id := range m.preferUnseen(pool) {
		if containsID(group.Members, id) {
			continue
		}
		members := make([]model.EntityID, len(group.Members))
		copy(members, group.Members)
		members[len(members)-1] = id
		return model.ComparisonGroup{Members: members, Strategy: StrategyRandomFallback}
	}
	return group
}

// extendGroup grows a pair to the requested size with the nearest-mean
// remaining candidate, preferring unseen ones.
func (m *Matchmaker) extendGroup(ctx context.Context, members []model.EntityID, pool []model.EntityID, groupSize int) []model.EntityID {
	for len(members) < groupSize {
		primaryRec := m.store.Get(ctx, members[0])
		var best *scored
		for _, id := range m.preferUnseen(pool) {
			if containsID(members, id) {
				continue
			}
			rec := m.store.Get(ctx, id)
			c := scored{id: id, rec: rec}
			if best == nil || absDiff(rec.Mean, primaryRec.Mean) < absDiff(best.rec.Mean, primaryRec.Mean) {
				best = &c
			}
		}
		if best == nil {
			break
		}
		members = append(members, best.id)
	}
	return members
}

// --- helpers ---

type scored struct {
	id      model.EntityID
	rec     rating.Record
	conserv float64
}

// rank returns rated pool members sorted by conservative score descending,
// with deterministic tie-breaks.
func (m *Matchmaker) rank(ctx context.Context, pool []model.EntityID) []scored {
	out := make([]scored, 0, len(pool))
	for _, id := range pool {
		rec := m.store.Get(ctx, id)
		if rec.Comparisons == 0 {
			continue
		}
		out = append(out, scored{id: id, rec: rec, conserv: m.updater.ConservativeScore(rec)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].conserv != out[j].conserv {
			return out[i].conserv > out[j].conserv
		}
		if out[i].rec.Uncertainty != out[j].rec.Uncertainty {
			return out[i].rec.Uncertainty < out[j].rec.Uncertainty
		}
		return out[i].id < out[j].id
	})
	return out
}

func topSlice(ranked []scored, n int) []scored {
	if len(ranked) < n {
		n = len(ranked)
	}
	return ranked[:n]
}

// closestConservative finds the rated entity nearest to primary's
// conservative score.
func (m *Matchmaker) closestConservative(ctx context.Context, ranked []scored, primary model.EntityID) (model.EntityID, bool) {
	target := m.updater.ConservativeScore(m.store.Get(ctx, primary))
	var best *scored
	for i := range ranked {
		if ranked[i].id == primary {
			continue
		}
		if best == nil || absDiff(ranked[i].conserv, target) < absDiff(best.conserv, target) {
			c := ranked[i]
			best = &c
		}
	}
	if best == nil {
		return "", false
	}
	return best.id, true
}

func (m *Matchmaker) pickUnrated(ctx context.Context, pool []model.EntityID, exclude model.EntityID) (model.EntityID, bool) {
	var unrated []model.EntityID
	for _, id := range pool {
		if id != exclude && m.store.Get(ctx, id).Comparisons == 0 {
			unrated = append(unrated, id)
		}
	}
	if len(unrated) == 0 {
		return "", false
	}
	return unrated[m.rng.Intn(len(unrated))], true
}

// highestUncertaintyBottom returns the most uncertain entity below the tier.
func (m *Matchmaker) highestUncertaintyBottom(ranked []scored, exclude model.EntityID) (model.EntityID, bool) {
	if len(ranked) <= m.tierSize {
		return "", false
	}
	bottom := ranked[m.tierSize:]
	var best *scored
	for i := range bottom {
		if bottom[i].id == exclude {
			continue
		}
		if best == nil || bottom[i].rec.Uncertainty > best.rec.Uncertainty {
			c := bottom[i]
			best = &c
		}
	}
	if best == nil {
		return "", false
	}
	return best.id, true
}

func (m *Matchmaker) randomOther(pool []model.EntityID, exclude model.EntityID) (model.EntityID, bool) {
	var others []model.EntityID
	for _, id := range pool {
		if id != exclude {
			others = append(others, id)
		}
	}
	if len(others) == 0 {
		return "", false
	}
	return others[m.rng.Intn(len(others))], true
}

// preferUnseen returns the non-recent subset, or the input when everything
// is recent.
func (m *Matchmaker) preferUnseen(ids []model.EntityID) []model.EntityID {
	var fresh []model.EntityID
	for _, id := range ids {
		if !m.memory.IsRecentID(id) {
			fresh = append(fresh, id)
		}
	}
	if len(fresh) == 0 {
		return ids
	}
	return fresh
}

func (m *Matchmaker) filterRecent(pool []model.EntityID) []model.EntityID {
	var out []model.EntityID
	for _, id := range pool {
		if !m.memory.IsRecentID(id) {
			out = append(out, id)
		}
	}
	return out
}

func contains(pool []model.EntityID, id model.EntityID) bool {
	for _, p := range pool {
		if p == id {
			return true
		}
	}
	return false
}

func containsID(members []model.EntityID, id model.EntityID) bool {
	for _, m := range members {
		if m == id {
			return true
		}
	}
	return false
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
