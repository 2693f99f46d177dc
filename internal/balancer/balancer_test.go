package balancer

import (
	"testing"
	"time"

	"github.com/llm-gateway/gateway/internal/circuitbreaker"
	"github.com/llm-gateway/gateway/internal/store"
)

type fakeStore struct {
	mapped      []store.RoutingCandidate
	passthrough []store.RoutingCandidate
	keys        map[string][]store.ChannelAPIKey
}

func (f *fakeStore) RoutingCandidatesForModel(publicName string) ([]store.RoutingCandidate, error) {
	return f.mapped, nil
}

func (f *fakeStore) EnabledChannelsPassthrough(model string) ([]store.RoutingCandidate, error) {
	return f.passthrough, nil
}

func (f *fakeStore) EnabledAPIKeysForChannel(channelID string) ([]store.ChannelAPIKey, error) {
	return f.keys[channelID], nil
}

func chanCandidate(id string, priority, weight int) store.RoutingCandidate {
	return store.RoutingCandidate{
		Channel: store.Channel{ID: id, Priority: priority, Weight: weight, Enabled: true},
		Mapping: store.ModelMapping{PublicName: "gpt-4", ChannelID: id, ActualName: "gpt-4", Modality: "chat"},
	}
}

func TestSelectPrefersHigherPriorityGroup(t *testing.T) {
	fs := &fakeStore{
		mapped: []store.RoutingCandidate{
			chanCandidate("a", 0, 1),
			chanCandidate("b", 1, 1),
		},
		keys: map[string][]store.ChannelAPIKey{
			"a": {{ID: "k1", ChannelID: "a", KeyValue: "key-a", Enabled: true}},
			"b": {{ID: "k2", ChannelID: "b", KeyValue: "key-b", Enabled: true}},
		},
	}
	b := New(fs, circuitbreaker.New(3, time.Minute))

	for i := 0; i < 20; i++ {
		sel, err := b.Select("gpt-4")
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if sel.Channel.ID != "a" {
			t.Fatalf("expected priority-0 channel a, got %s", sel.Channel.ID)
		}
	}
}

func TestSelectFallsThroughOnOpenCircuit(t *testing.T) {
	fs := &fakeStore{
		mapped: []store.RoutingCandidate{
			chanCandidate("a", 0, 1),
			chanCandidate("b", 1, 1),
		},
		keys: map[string][]store.ChannelAPIKey{
			"a": {{ID: "k1", ChannelID: "a", KeyValue: "key-a", Enabled: true}},
			"b": {{ID: "k2", ChannelID: "b", KeyValue: "key-b", Enabled: true}},
		},
	}
	cb := circuitbreaker.New(1, time.Hour)
	cb.RecordFailure("a")

	b := New(fs, cb)
	sel, err := b.Select("gpt-4")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if sel.Channel.ID != "b" {
		t.Fatalf("expected fallback to channel b, got %s", sel.Channel.ID)
	}
}

func TestSelectUsesPassthroughWhenNoMapping(t *testing.T) {
	fs := &fakeStore{
		passthrough: []store.RoutingCandidate{chanCandidate("only", 0, 1)},
		keys: map[string][]store.ChannelAPIKey{
			"only": {{ID: "k1", ChannelID: "only", KeyValue: "key-only", Enabled: true}},
		},
	}
	b := New(fs, circuitbreaker.New(3, time.Minute))

	sel, err := b.Select("unmapped-model")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if sel.Channel.ID != "only" || sel.Mapping.ActualName != "unmapped-model" {
		t.Fatalf("expected synthesized passthrough mapping, got %+v", sel)
	}
}

func TestSelectReturnsAllChannelsFailedWhenEveryGroupCircuitOpen(t *testing.T) {
	fs := &fakeStore{
		mapped: []store.RoutingCandidate{chanCandidate("a", 0, 1)},
	}
	cb := circuitbreaker.New(1, time.Hour)
	cb.RecordFailure("a")

	b := New(fs, cb)
	_, err := b.Select("gpt-4")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestSelectReturnsNoChannelWhenNothingMapped(t *testing.T) {
	fs := &fakeStore{}
	b := New(fs, circuitbreaker.New(3, time.Minute))

	_, err := b.Select("gpt-4")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestSelectFailsWhenChosenChannelHasNoEnabledKey(t *testing.T) {
	fs := &fakeStore{
		mapped: []store.RoutingCandidate{chanCandidate("no-keys", 0, 1)},
	}
	b := New(fs, circuitbreaker.New(3, time.Minute))

	_, err := b.Select("gpt-4")
	if err == nil {
		t.Fatal("expected an error when the chosen channel has no enabled API key")
	}
}

func TestKeyRotationRoundRobins(t *testing.T) {
	fs := &fakeStore{
		mapped: []store.RoutingCandidate{
			{
				Channel: store.Channel{ID: "rot", Priority: 0, Weight: 1, Enabled: true, KeyRotation: true},
				Mapping: store.ModelMapping{PublicName: "gpt-4", ChannelID: "rot", ActualName: "gpt-4"},
			},
		},
		keys: map[string][]store.ChannelAPIKey{
			"rot": {
				{ID: "k1", ChannelID: "rot", KeyValue: "key-1", Enabled: true},
				{ID: "k2", ChannelID: "rot", KeyValue: "key-2", Enabled: true},
			},
		},
	}
	b := New(fs, circuitbreaker.New(3, time.Minute))

	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		sel, err := b.Select("gpt-4")
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		seen[sel.APIKey] = true
	}
	if !seen["key-1"] || !seen["key-2"] {
		t.Fatalf("expected both keys to be used via rotation, saw %v", seen)
	}
}
