// Package whiten implements the whitening transform applied to feature
// vectors before they enter the index.
//
// Fit estimates the mean and covariance of a sample and derives an affine
// map x -> (x - mean) * U * diag(1/sqrt(s)) from the singular value
// decomposition of the covariance. Applied vectors are L2-normalized.
// Optionally only the leading output components are kept, which reduces the
// dimension of the stored vectors.
//
// See Su et al., "Whitening Sentence Representations for Better Semantics
// and Faster Retrieval" (2021).
package whiten
