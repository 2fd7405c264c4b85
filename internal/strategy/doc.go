// Package strategy orders the candidate providers of a fetch. The dispatcher
// walks the returned order, falling back to the next provider when one fails
// or its circuit is open.
//
//   - Priority: the configured asset-class order, unchanged
//   - Round Robin: rotates the starting provider on every call
//   - Random: a fresh shuffle per call
//   - Least Connections: fewest in-flight requests first
//   - Least Response Time: lowest EWMA response time weighted by load
//   - Weighted Round Robin: smooth weighted rotation of the first choice
//   - Consistent Hash: symbol affinity on a ring of virtual nodes
//
// Every strategy returns a new slice holding a permutation of its input.
package strategy
