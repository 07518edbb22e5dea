// Package dynamo provides the simulation primitives shared by the Monte Carlo
// and deterministic signal simulators.
//
// The package defines the fundamental types and the stepping lifecycle:
//
//   - [Signal]: total, extravascular and intravascular signal at one step
//   - [Propagator]: advances a simulation by one discrete time index
//   - [Simulator]: drives a propagator through its planned step count
//   - [Metric] and [Observer]: read-only consumers of the signal series
//   - [Ensemble]: repeats a simulation over consecutive seeds
//
// # Example
//
//	seq, _ := sequence.NewSpinSequence(ens, numSteps, sched)
//	sim, _ := dynamo.New(seq, numSteps)
//	result, _ := sim.Walk(ctx)
//
// # Lifecycle
//
// A Simulator starts initialized, moves to stepping on the first call to
// Step or Walk and becomes finalized once the planned step count is reached.
// Stepping a finalized simulator fails with [ErrFinalized] until Reset.
//
// # Thread Safety
//
// Simulator instances are NOT thread-safe. For parallel simulations,
// use the [Ensemble] type which builds an independent simulator per run.
package dynamo
