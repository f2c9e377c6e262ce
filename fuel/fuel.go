// Package fuel implements the optional gas-metering layer described in
// spec.md §5: a cancellable budget the interpreter decrements once per
// instruction (and once per page on memory.grow), tripping ErrOutOfFuel
// when it runs out. It is grounded on the teacher's vm.Gas/GasPolicy
// design (vm/gas.go) generalized to a standalone package so it can be
// shared across instances without importing the vm package itself.
package fuel

import "github.com/tinywasm/tinywasm/opcode"

// Policy prices instructions and memory growth. A Policy is consulted once
// per step by a Meter; it never observes the operand stack or any other
// execution state, only the opcode (and, for growth, the page count).
type Policy interface {
	Cost(op opcode.Opcode) uint64
	GrowCost(pages uint32) uint64
}

// FreePolicy charges nothing, equivalent to running without metering.
type FreePolicy struct{}

func (FreePolicy) Cost(opcode.Opcode) uint64   { return 0 }
func (FreePolicy) GrowCost(uint32) uint64      { return 0 }

// FlatPolicy charges PerOp fuel for every instruction and PerPage fuel for
// every page grown, the same flat pricing scheme as the teacher's
// SimpleGasPolicy.
type FlatPolicy struct {
	PerOp   uint64
	PerPage uint64
}

func (p FlatPolicy) Cost(opcode.Opcode) uint64 { return p.PerOp }
func (p FlatPolicy) GrowCost(pages uint32) uint64 {
	return uint64(pages) * p.PerPage
}

// Meter tracks fuel consumption against a Limit under a Policy. A zero
// Meter (no Policy set) behaves as unmetered; Instantiate installs
// FreePolicy{} when the caller doesn't supply one so Consume is always
// safe to call unconditionally from the interpreter's step loop.
type Meter struct {
	Policy Policy
	Used   uint64
	Limit  uint64
	// Unlimited disables the Limit check entirely; fuel is still counted
	// in Used for observability, but Consume never fails.
	Unlimited bool
}

// NewMeter builds a Meter with the given policy and limit.
func NewMeter(p Policy, limit uint64) *Meter {
	if p == nil {
		p = FreePolicy{}
	}
	return &Meter{Policy: p, Limit: limit}
}

// NewUnlimitedMeter builds a Meter that counts usage but never refuses it,
// used when the embedder wants fuel accounting without enforcement.
func NewUnlimitedMeter(p Policy) *Meter {
	m := NewMeter(p, 0)
	m.Unlimited = true
	return m
}

// Consume charges the cost of op against the budget, returning false if
// doing so would exceed Limit. On false, Used is left unchanged so the
// caller can report a precise remaining count.
func (m *Meter) Consume(op opcode.Opcode) bool {
	if m == nil || m.Policy == nil {
		return true
	}
	cost := m.Policy.Cost(op)
	return m.spend(cost)
}

// ConsumeGrow charges a memory.grow of the given page count.
func (m *Meter) ConsumeGrow(pages uint32) bool {
	if m == nil || m.Policy == nil {
		return true
	}
	return m.spend(m.Policy.GrowCost(pages))
}

func (m *Meter) spend(cost uint64) bool {
	if m.Unlimited {
		m.Used += cost
		return true
	}
	if m.Used+cost > m.Limit {
		return false
	}
	m.Used += cost
	return true
}

// Remaining returns how much fuel is left, or 0 if already exhausted.
func (m *Meter) Remaining() uint64 {
	if m == nil || m.Unlimited {
		return 0
	}
	if m.Used >= m.Limit {
		return 0
	}
	return m.Limit - m.Used
}
