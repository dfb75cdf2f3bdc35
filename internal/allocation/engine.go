package allocation

import (
	"sort"
	"time"

	"github.com/soltixdb/unistor/internal/classifier"
	"github.com/soltixdb/unistor/internal/hardware"
	"github.com/soltixdb/unistor/internal/logging"
)

// NodeSource is the read side of the registry the engine needs
type NodeSource interface {
	List() []hardware.NodeState
	ListShard(idx int) []hardware.NodeState
	ShardGenerations(idx int) map[string]uint64
}

// ReservationView reports bytes already committed on a drive by backends
type ReservationView interface {
	Reserved(nodeID, driveID string) uint64
}

// Observer receives one call per Allocate with the outcome label
// ("success", "insufficient_capacity", ...) and the time spent.
type Observer interface {
	ObserveAllocation(outcome string, elapsed time.Duration)
}

// Option configures an Engine
type Option func(*Engine)

// WithStaleness excludes nodes whose last_seen is older than d. Zero
// disables the check.
func WithStaleness(d time.Duration) Option {
	return func(e *Engine) {
		e.staleness = d
	}
}

// WithClock overrides the time source used for staleness
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the engine logger
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithReservations makes the engine subtract committed bytes from drive capacity
func WithReservations(v ReservationView) Option {
	return func(e *Engine) {
		e.reservations = v
	}
}

// WithObserver reports allocation outcomes, usually to metrics
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// Engine selects drives for allocation requests. It holds no state between
// calls besides its configuration.
type Engine struct {
	source       NodeSource
	staleness    time.Duration
	now          func() time.Time
	logger       *logging.Logger
	reservations ReservationView
	observer     Observer
	pools        []PoolSelector
}

// NewEngine creates an engine reading from source
func NewEngine(source NodeSource, opts ...Option) *Engine {
	e := &Engine{
		source: source,
		now:    time.Now,
		logger: logging.Global().With("component", "allocation"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Staleness returns the configured staleness threshold
func (e *Engine) Staleness() time.Duration {
	return e.staleness
}

type candidate struct {
	node       string
	domain     string
	generation uint64
	drive      hardware.Drive
	score      int
	free       uint64
}

// Allocate selects drives satisfying req from a fresh registry snapshot
func (e *Engine) Allocate(req Request) (*Result, error) {
	start := time.Now()
	res, err := e.allocate(req)
	if e.observer != nil {
		e.observer.ObserveAllocation(Outcome(err), time.Since(start))
	}
	if err != nil {
		e.logger.Debug("Allocation failed",
			"storage_type", string(req.StorageType),
			"capacity_bytes", req.CapacityBytes,
			"error", err)
		return nil, err
	}
	e.logger.Debug("Allocation selected",
		"storage_type", string(req.StorageType),
		"capacity_bytes", req.CapacityBytes,
		"placements", len(res.Placements),
		"nodes", len(res.Generations))
	return res, nil
}

func (e *Engine) allocate(req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, &Error{Kind: KindInvalidRequest, Reason: err.Error()}
	}
	req = req.Normalize()

	cands := e.candidates(req, e.source.List())
	if len(cands) == 0 {
		return nil, &Error{
			Kind:           KindNoCandidates,
			RequestedBytes: req.CapacityBytes,
			RequiredNodes:  req.RequiredNodes(),
			Reason:         "no drive matches the requested tier, drive type and storage type",
		}
	}

	var poolBytes uint64
	poolNodes := make(map[string]struct{})
	poolDomains := make(map[string]struct{})
	for _, c := range cands {
		poolBytes += c.free
		poolNodes[c.node] = struct{}{}
		poolDomains[c.domain] = struct{}{}
	}
	required := req.RequiredNodes()

	if poolBytes < req.CapacityBytes {
		return nil, &Error{
			Kind:           KindInsufficientCapacity,
			RequestedBytes: req.CapacityBytes,
			AvailableBytes: poolBytes,
			RequiredNodes:  required,
			AvailableNodes: len(poolNodes),
		}
	}
	if len(poolNodes) < required {
		return nil, &Error{
			Kind:           KindInsufficientDiversity,
			RequestedBytes: req.CapacityBytes,
			AvailableBytes: poolBytes,
			RequiredNodes:  required,
			AvailableNodes: len(poolNodes),
		}
	}
	if len(poolDomains) < req.MinFaultDomains {
		return nil, &Error{
			Kind:             KindInsufficientDiversity,
			RequestedBytes:   req.CapacityBytes,
			AvailableBytes:   poolBytes,
			RequiredNodes:    required,
			AvailableNodes:   len(poolNodes),
			RequiredDomains:  req.MinFaultDomains,
			AvailableDomains: len(poolDomains),
		}
	}

	sortCandidates(cands, req.PreferEnterprise)
	selected := greedy(cands, req.CapacityBytes, required, req.MinFaultDomains)

	result := &Result{
		Placements:     make([]Placement, len(selected)),
		Generations:    make(map[string]uint64),
		TotalBytes:     req.CapacityBytes,
		CandidateCount: len(cands),
	}
	shares := waterFill(selected, req.CapacityBytes)
	for i, c := range selected {
		result.Placements[i] = Placement{
			NodeID:        c.node,
			DriveID:       c.drive.DriveID,
			BytesReserved: shares[i],
			Tier:          c.drive.Tier,
			Score:         c.score,
		}
		result.Generations[c.node] = c.generation
	}
	return result, nil
}

// AvailableCapacity sums free bytes over every drive that would be a
// candidate for req, without selecting any.
func (e *Engine) AvailableCapacity(req Request) (bytes uint64, drives int, nodes int, err error) {
	if err := req.Validate(); err != nil {
		return 0, 0, 0, &Error{Kind: KindInvalidRequest, Reason: err.Error()}
	}
	cands := e.candidates(req.Normalize(), e.source.List())
	seen := make(map[string]struct{})
	for _, c := range cands {
		bytes += c.free
		seen[c.node] = struct{}{}
	}
	return bytes, len(cands), len(seen), nil
}

// candidates applies node and drive filters. Nodes that are stale or not
// Ready never contribute.
func (e *Engine) candidates(req Request, nodes []hardware.NodeState) []candidate {
	now := e.now()
	exclude := toSet(req.ExcludeNodes)
	prefer := toSet(req.PreferNodes)

	var out []candidate
	for i := range nodes {
		n := &nodes[i]
		if n.EffectivePhase(now, e.staleness) != hardware.PhaseReady {
			continue
		}
		if _, ok := exclude[n.NodeID]; ok {
			continue
		}
		if len(prefer) > 0 {
			if _, ok := prefer[n.NodeID]; !ok {
				continue
			}
		}
		if !matchLabels(n.Labels, req.NodeSelector) {
			continue
		}

		domain := faultDomain(n)
		for _, id := range n.SortedDriveIDs() {
			d := n.Drives[id]
			if !e.driveMatches(req, d) {
				continue
			}
			score := classifier.ScoreFor(d, req.StorageType)
			if score < req.MinScore {
				continue
			}
			free := e.free(n.NodeID, d)
			if free == 0 {
				continue
			}
			out = append(out, candidate{
				node:       n.NodeID,
				domain:     domain,
				generation: n.Generation,
				drive:      d,
				score:      score,
				free:       free,
			})
		}
	}
	return out
}

func (e *Engine) driveMatches(req Request, d hardware.Drive) bool {
	return req.DriveTypePreference.Allows(d.DriveType) &&
		req.TierPreference.Allows(d.Tier) &&
		d.SmartHealth == hardware.HealthHealthy &&
		d.SuitableFor.Has(req.StorageType) &&
		(!req.RequireZNS || d.ZNSSupported) &&
		d.CapacityBytes >= req.MinDriveBytes
}

// faultDomain keys a node's failure domain; unlabelled nodes stand alone
func faultDomain(n *hardware.NodeState) string {
	if n.FaultDomain != "" {
		return "domain/" + n.FaultDomain
	}
	return "node/" + n.NodeID
}

func (e *Engine) free(nodeID string, d hardware.Drive) uint64 {
	return e.freeBytes(nodeID, d.DriveID, d.CapacityBytes)
}

func (e *Engine) freeBytes(nodeID, driveID string, capacity uint64) uint64 {
	if e.reservations == nil {
		return capacity
	}
	used := e.reservations.Reserved(nodeID, driveID)
	if used >= capacity {
		return 0
	}
	return capacity - used
}

// sortCandidates orders by score desc, free capacity desc, node id asc,
// drive id asc. Free equals raw capacity unless reservations are wired in.
// With preferEnterprise, enterprise drives sort ahead of everything else.
func sortCandidates(cands []candidate, preferEnterprise bool) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if preferEnterprise && a.drive.Enterprise != b.drive.Enterprise {
			return a.drive.Enterprise
		}
		if a.score != b.score {
			return a.score > b.score
		}
		if a.free != b.free {
			return a.free > b.free
		}
		if a.node != b.node {
			return a.node < b.node
		}
		return a.drive.DriveID < b.drive.DriveID
	})
}

// greedy walks sorted candidates accumulating bytes. While fewer than
// required distinct nodes are selected, a second drive on an already chosen
// node is deferred; likewise a drive in an already chosen fault domain while
// fewer than requiredDomains are covered. After every pick the deferred
// drives that are no longer blocked are taken in order, and whatever is left
// fills remaining capacity at the end. The caller has checked that the whole
// pool satisfies every constraint.
func greedy(cands []candidate, want uint64, required, requiredDomains int) []candidate {
	var (
		selected []candidate
		deferred []candidate
		total    uint64
	)
	nodes := make(map[string]struct{})
	domains := make(map[string]struct{})

	done := func() bool {
		return total >= want && len(nodes) >= required && len(domains) >= requiredDomains
	}
	blocked := func(c candidate) bool {
		if _, dup := nodes[c.node]; dup && len(nodes) < required {
			return true
		}
		if _, dup := domains[c.domain]; dup && len(domains) < requiredDomains {
			return true
		}
		return false
	}
	take := func(c candidate) {
		selected = append(selected, c)
		nodes[c.node] = struct{}{}
		domains[c.domain] = struct{}{}
		total += c.free
	}
	retry := func() {
		for progress := true; progress && !done(); {
			progress = false
			for i := 0; i < len(deferred) && !done(); i++ {
				if blocked(deferred[i]) {
					continue
				}
				take(deferred[i])
				deferred = append(deferred[:i], deferred[i+1:]...)
				progress = true
				i--
			}
		}
	}

	for _, c := range cands {
		if done() {
			break
		}
		if blocked(c) {
			deferred = append(deferred, c)
			continue
		}
		take(c)
		retry()
	}
	for len(deferred) > 0 && !done() {
		take(deferred[0])
		deferred = deferred[1:]
	}
	return selected
}

// waterFill splits want across the selection: every drive gets an equal
// share capped at its free bytes, repeated until nothing is left. The
// remainder of an uneven split goes to drives in selection order.
func waterFill(selected []candidate, want uint64) []uint64 {
	shares := make([]uint64, len(selected))
	remaining := want

	for remaining > 0 {
		var open []int
		for i, c := range selected {
			if shares[i] < c.free {
				open = append(open, i)
			}
		}
		if len(open) == 0 {
			break
		}

		each := remaining / uint64(len(open))
		if each == 0 {
			for _, i := range open {
				if remaining == 0 {
					break
				}
				shares[i]++
				remaining--
			}
			continue
		}
		for _, i := range open {
			room := selected[i].free - shares[i]
			give := each
			if give > room {
				give = room
			}
			shares[i] += give
			remaining -= give
		}
	}
	return shares
}

// Outcome maps an Allocate error to a metrics label
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	if e, ok := err.(*Error); ok {
		switch e.Kind {
		case KindInsufficientCapacity:
			return "insufficient_capacity"
		case KindInsufficientDiversity:
			return "insufficient_diversity"
		case KindNoCandidates:
			return "no_candidates"
		case KindInvalidRequest:
			return "invalid_request"
		}
	}
	return "error"
}

func toSet(ids []string) map[string]struct{} {
	if len(ids) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func matchLabels(labels, selector map[string]string) bool {
	for k, v := range selector {
		if labels[k] != v {
			return false
		}
	}
	return true
}
