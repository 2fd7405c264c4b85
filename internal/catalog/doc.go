// Package catalog resolves requested symbols to canonical assets and the
// asset class that decides which providers may serve them, in priority order.
package catalog
