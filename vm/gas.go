// Gas metering wires the instantiated instance to the fuel package: every
// interpretation step and every memory.grow consults the instance's
// *fuel.Meter (nil-safe; a nil meter never refuses). This supersedes the
// teacher's vm.Gas/GasPolicy pair (vm/gas.go), generalized into its own
// package so it composes cleanly with the rest of the instantiation
// pipeline instead of being VM-internal state.
package vm

import "github.com/tinywasm/tinywasm/fuel"

// WithFuel installs a fuel meter on an instance being built, enabling gas
// metering for the lifetime of that instance. Without this option,
// Instantiate installs an unmetered fuel.FreePolicy meter.
func WithFuel(policy fuel.Policy, limit uint64) Option {
	return func(cfg *instanceConfig) {
		cfg.meter = fuel.NewMeter(policy, limit)
	}
}
