// Package score turns the neighbors of a query into a distribution over the
// vocabulary.
//
// Each neighbor contributes softmax(-distance/T) to the slot of its label.
// Weights of neighbors sharing a label add up, so the result always sums to 1
// when every label is a valid vocabulary index.
package score
