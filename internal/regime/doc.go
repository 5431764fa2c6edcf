// Package regime infers a discrete liquidity regime (expansive / neutral /
// contractive) from a feature table using unsupervised probabilistic models.
//
// # Backends
//
// Two interchangeable backends operate over the same feature-selection
// contract and produce K latent states:
//
//   - BackendMixture: a static full-covariance Gaussian mixture fit by EM;
//     rows are i.i.d. given their state
//   - BackendHMM: a first-order hidden Markov model with diagonal Gaussian
//     emissions fit by Baum-Welch, adding temporal persistence
//
// Both fits are non-convex and seed-sensitive. The engine runs a bounded
// multi-restart search (independent seeds derived from an explicit base seed)
// and keeps the single highest-scoring fit under a strict greater-than
// reduction, so ties resolve to the first seed and output is reproducible.
//
// # Canonical relabeling
//
// Raw latent state indices are arbitrary. The engine orders them by a
// per-state expansiveness score (the summed means of two designated feature
// columns) into canonical labels 0=expansive, 1=neutral, 2=contractive, and
// applies that mapping consistently to hard labels, posterior vectors, and,
// for the HMM, the transition matrix.
//
// # Transition smoothing
//
// The HMM's transition matrix is smoothed with a uniform pseudocount and
// row-renormalized before scoring and decoding, so no transition probability
// is ever exactly zero.
package regime
