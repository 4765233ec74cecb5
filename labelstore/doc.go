// Package labelstore keeps the per-vector labels of a datastore.
//
// Every stored vector has an id equal to its insertion position. The store
// holds two parallel arrays indexed by that id: the target token the vector
// predicts and the raw input token it was extracted from. The store is
// append-only.
package labelstore
