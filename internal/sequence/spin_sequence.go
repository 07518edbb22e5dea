package sequence

import (
	"fmt"

	"github.com/san-kum/boldsim/internal/dynamo"
	"github.com/san-kum/boldsim/internal/spins"
)

// Partition classifies a vessel index as intravascular.
type Partition func(vesselIdx int) bool

// AnyVessel treats every vessel as intravascular.
func AnyVessel(idx int) bool { return idx > 0 }

// VesselSet treats only the listed vessel indices as intravascular.
func VesselSet(indices []int) Partition {
	set := make(map[int]bool, len(indices))
	for _, i := range indices {
		set[i] = true
	}
	return func(idx int) bool { return set[idx] }
}

// SpinSequence drives a spin ensemble through a pulse sequence. It is the
// Monte Carlo propagator.
type SpinSequence struct {
	ens       *spins.Ensemble
	seq       *Sequence
	partition Partition
	iv        []bool
}

func NewSpinSequence(ens *spins.Ensemble, numSteps int, sched Schedule, opts ...Option) (*SpinSequence, error) {
	return NewMaskedSpinSequence(ens, numSteps, sched, AnyVessel, opts...)
}

// NewMaskedSpinSequence uses partition instead of vessel ownership to split
// the signal into compartments.
func NewMaskedSpinSequence(ens *spins.Ensemble, numSteps int, sched Schedule, partition Partition, opts ...Option) (*SpinSequence, error) {
	if partition == nil {
		return nil, dynamo.Configf("partition", "must not be nil")
	}
	seq, err := New(ens.NumSpins(), numSteps, sched, opts...)
	if err != nil {
		return nil, err
	}
	return &SpinSequence{
		ens:       ens,
		seq:       seq,
		partition: partition,
		iv:        make([]bool, ens.NumSpins()),
	}, nil
}

func (s *SpinSequence) Advance(step int) (dynamo.Signal, error) {
	if step != s.seq.StepIndex() {
		return dynamo.Signal{}, fmt.Errorf("spin sequence at step %d, asked for %d", s.seq.StepIndex(), step)
	}
	out := s.ens.Step()
	for i, idx := range out.VesselIndex {
		s.iv[i] = s.partition(idx)
	}
	return s.seq.Step(out.Phase, s.iv, out.Dt)
}

func (s *SpinSequence) Dt() float64 { return s.ens.Dt() }

func (s *SpinSequence) Reset() error {
	if err := s.ens.Reset(); err != nil {
		return err
	}
	s.seq.Reset()
	return nil
}

func (s *SpinSequence) Warnings() []error   { return s.seq.Warnings() }
func (s *SpinSequence) Sequence() *Sequence { return s.seq }
func (s *SpinSequence) Ensemble() *spins.Ensemble {
	return s.ens
}
