// Package clock abstracts the wall clock so that time-driven components
// (circuit breakers, health windows) can be tested deterministically.
package clock
