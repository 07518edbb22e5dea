// Package geometry builds the voxels that perturb the static field.
//
// A [ContinuousVoxel] holds an ordered list of vessels and evaluates the
// analytic field perturbation at arbitrary points. A [DiscreteVoxel] samples
// that field and the vessel ownership on a fixed grid and is immutable once
// built, so it can be shared read-only across concurrent walkers.
//
// Coordinates are centred: every axis spans [-size/2, size/2) and the field,
// ownership and overlap tests all use periodic minimum-image offsets.
package geometry
