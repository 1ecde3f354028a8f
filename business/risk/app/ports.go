// Package app contains the risk model, the sensor hub, and their ports.
package app

import "context"

// Sensor produces one normalized [0,1] reading of a network condition.
type Sensor interface {
	// Name identifies the sensor in logs, metrics, and the hub cache.
	Name() string

	// Sample takes a fresh reading. Implementations may hit the chain;
	// callers cache through the hub.
	Sample(ctx context.Context) (float64, error)
}
