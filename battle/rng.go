package battle

import (
	"hash/fnv"
	"math/rand"
)

// MatchKey uniquely identifies a reproducible match setup.
// Two matches with the same MatchKey, configuration and bot replies
// MUST produce identical unit ids, placements and outcomes.
type MatchKey int64

const (
	// SubsystemUnitIDs drives AllocateID.
	SubsystemUnitIDs = "unit-ids"

	// SubsystemPlacement drives random starting positions.
	SubsystemPlacement = "placement"

	// SubsystemBot is used by the sample bot.
	SubsystemBot = "bot"
)

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derivation: masterSeed XOR fnv1a64(subsystemName), so adding a new
// subsystem never perturbs the streams of existing ones.
//
// Thread-safety: NOT thread-safe. Must be called from the engine goroutine.
type PartitionedRNG struct {
	key        MatchKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a MatchKey.
func NewPartitionedRNG(key MatchKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same name always returns the same *rand.Rand instance. Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(int64(p.key) ^ fnv1a64(name)))
	p.subsystems[name] = rng
	return rng
}

// Key returns the MatchKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() MatchKey {
	return p.key
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
