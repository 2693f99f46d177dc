// Package balancer selects which configured channel (and which of its API
// keys) should serve a given model request. Grounded on
// original_source/src-tauri/src/routing/balancer.rs's select_target and
// weighted_random_select, generalized to add the priority-group partitioning
// spec.md §4.3 requires on top of the original's flat single-priority
// selection, and the passthrough-fallback synthesis it lacks entirely.
package balancer

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/llm-gateway/gateway/internal/apperror"
	"github.com/llm-gateway/gateway/internal/circuitbreaker"
	"github.com/llm-gateway/gateway/internal/store"
)

// Selection is the outcome of a successful Select call: the chosen channel,
// its mapping for the requested model, and the API key to send upstream.
type Selection struct {
	Channel store.Channel
	Mapping store.ModelMapping
	APIKey  string
}

// candidateStore is the subset of *store.Store the balancer depends on,
// narrowed for testability.
type candidateStore interface {
	RoutingCandidatesForModel(publicName string) ([]store.RoutingCandidate, error)
	EnabledChannelsPassthrough(model string) ([]store.RoutingCandidate, error)
	EnabledAPIKeysForChannel(channelID string) ([]store.ChannelAPIKey, error)
}

// rotationCounter is one channel's round-robin cursor for key_rotation.
type rotationCounter struct {
	n uint64
}

// Balancer holds the key-rotation counters alongside a circuit breaker.
// A zero Balancer is not usable; construct with New.
type Balancer struct {
	db      candidateStore
	circuit *circuitbreaker.Breaker

	mu         sync.Mutex
	rotations  map[string]*rotationCounter
}

// New constructs a Balancer backed by db and circuit.
func New(db candidateStore, circuit *circuitbreaker.Breaker) *Balancer {
	return &Balancer{
		db:        db,
		circuit:   circuit,
		rotations: make(map[string]*rotationCounter),
	}
}

// Select implements spec.md §4.3's full algorithm: query mapped channels for
// model ordered by priority, fall back to a synthesized passthrough mapping
// over all enabled channels if none are mapped, partition into contiguous
// equal-priority groups, and within the first group with an available
// (circuit-closed) candidate perform a weighted-random pick.
func (b *Balancer) Select(model string) (*Selection, error) {
	candidates, err := b.db.RoutingCandidatesForModel(model)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		candidates, err = b.db.EnabledChannelsPassthrough(model)
		if err != nil {
			return nil, err
		}
		for i := range candidates {
			candidates[i].Mapping = store.ModelMapping{
				PublicName: model, ChannelID: candidates[i].Channel.ID, ActualName: model, Modality: "chat",
			}
		}
	}

	if len(candidates) == 0 {
		return nil, apperror.NoChannel(model)
	}

	for _, group := range partitionByPriority(candidates) {
		var available []store.RoutingCandidate
		for _, c := range group {
			if b.circuit.IsAvailable(c.Channel.ID) {
				available = append(available, c)
			}
		}
		if len(available) == 0 {
			continue
		}

		chosen := weightedRandomSelect(available)
		key, err := b.selectKey(chosen.Channel)
		if err != nil {
			return nil, err
		}
		return &Selection{Channel: chosen.Channel, Mapping: chosen.Mapping, APIKey: key}, nil
	}

	return nil, apperror.AllChannelsFailed(model)
}

// partitionByPriority splits candidates (already ordered by priority ASC)
// into contiguous runs sharing the same priority value.
func partitionByPriority(candidates []store.RoutingCandidate) [][]store.RoutingCandidate {
	var groups [][]store.RoutingCandidate
	var current []store.RoutingCandidate
	for i, c := range candidates {
		if i > 0 && c.Channel.Priority != candidates[i-1].Channel.Priority {
			groups = append(groups, current)
			current = nil
		}
		current = append(current, c)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

// weightedRandomSelect draws uniformly over [0, Σmax(weight,1)) and walks
// the candidates subtracting each one's weight until the running total goes
// negative. A single candidate bypasses the RNG entirely.
func weightedRandomSelect(candidates []store.RoutingCandidate) store.RoutingCandidate {
	if len(candidates) == 1 {
		return candidates[0]
	}

	total := 0
	for _, c := range candidates {
		total += weightOrMin(c.Channel.Weight)
	}

	pick := rand.Intn(total)
	for _, c := range candidates {
		pick -= weightOrMin(c.Channel.Weight)
		if pick < 0 {
			return c
		}
	}
	return candidates[len(candidates)-1]
}

func weightOrMin(w int) int {
	if w < 1 {
		return 1
	}
	return w
}

// selectKey fetches channel's enabled API keys and returns the one to use:
// the sole key if rotation is off, or the next round-robin key if the
// channel has key_rotation enabled. A channel with no enabled key at all is
// a configuration error, not a passthrough case: fail loudly.
func (b *Balancer) selectKey(ch store.Channel) (string, error) {
	keys, err := b.db.EnabledAPIKeysForChannel(ch.ID)
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", apperror.Internal(fmt.Sprintf("No API key for channel %s", ch.ID))
	}
	if !ch.KeyRotation {
		return keys[0].KeyValue, nil
	}

	idx := b.nextRotationIndex(ch.ID, len(keys))
	return keys[idx].KeyValue, nil
}

func (b *Balancer) nextRotationIndex(channelID string, keyCount int) int {
	b.mu.Lock()
	rc, ok := b.rotations[channelID]
	if !ok {
		rc = &rotationCounter{}
		b.rotations[channelID] = rc
	}
	b.mu.Unlock()

	n := atomic.AddUint64(&rc.n, 1) - 1
	return int(n % uint64(keyCount))
}
