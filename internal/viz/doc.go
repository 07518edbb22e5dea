// Package viz draws voxels, spins and signal curves in the terminal.
//
// [Canvas] is a Braille pixel canvas. [DrawVoxel], [DrawOwnership] and
// [DrawField] paint a geometry onto it, and [Model] is a Bubble Tea program
// that steps a simulator while showing the walkers and the decay curves.
//
// # Key Bindings
//
//	Space - Pause/Resume simulation
//	R     - Reset to step 0
//	T     - Cycle color themes
//	?     - Show help overlay
//	[ ]   - Scrub through recorded steps
//	+ -   - Steps per frame
//	x y z - Rotate a 3D voxel (shift reverses)
//	i o   - Zoom a 3D voxel
package viz
