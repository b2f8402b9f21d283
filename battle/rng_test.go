package battle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartitionedRNG_DeterministicDerivation(t *testing.T) {
	// Same key and subsystem produce the same stream
	a := NewPartitionedRNG(42).ForSubsystem(SubsystemUnitIDs)
	b := NewPartitionedRNG(42).ForSubsystem(SubsystemUnitIDs)
	for i := 0; i < 5; i++ {
		assert.Equal(t, a.Int63(), b.Int63())
	}
}

func TestPartitionedRNG_SubsystemIsolation(t *testing.T) {
	// Drawing from one subsystem does not shift another
	fresh := NewPartitionedRNG(7).ForSubsystem(SubsystemPlacement).Int63()

	p := NewPartitionedRNG(7)
	for i := 0; i < 10; i++ {
		p.ForSubsystem(SubsystemUnitIDs).Int63()
	}
	assert.Equal(t, fresh, p.ForSubsystem(SubsystemPlacement).Int63())
}

func TestPartitionedRNG_SameInstancePerName(t *testing.T) {
	p := NewPartitionedRNG(1)
	assert.Same(t, p.ForSubsystem(SubsystemBot), p.ForSubsystem(SubsystemBot))
	assert.Equal(t, MatchKey(1), p.Key())
}

func TestPartitionedRNG_DifferentKeysDiffer(t *testing.T) {
	a := NewPartitionedRNG(1).ForSubsystem(SubsystemUnitIDs).Int63()
	b := NewPartitionedRNG(2).ForSubsystem(SubsystemUnitIDs).Int63()
	assert.NotEqual(t, a, b)
}
