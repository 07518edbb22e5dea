// Package analysis post-processes simulated signals and field maps.
//
//   - [Compare]: RMS and worst-case difference between two signal curves,
//     used to cross-check the deterministic diffuser against Monte Carlo
//   - [FrequencyHistogram]: distribution of precession frequency offsets
//     over a discretized voxel
//   - [PowerSpectrum]: spectrum of a signal curve
//
// # Cross-checking
//
//	cmp, err := analysis.Compare(mc.Total, dd.Total)
//	if err == nil && cmp.RMS < 0.01 {
//	    // the two propagators agree
//	}
package analysis
