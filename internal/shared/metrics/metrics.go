// Package metrics holds prometheus helpers shared by the bot's components.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Register registers c with registry and returns the collector to use. If an
// identical collector is already registered, the existing one is returned so
// several component instances can share one registry. A nil registry leaves c
// unregistered.
func Register[T prometheus.Collector](registry prometheus.Registerer, c T) T {
	if registry == nil {
		return c
	}
	if err := registry.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
