// Completion: 100% - program memory load protocol complete
package tinyavr

import "fmt"

// Loads from program memory cannot use ordinary addressing: the pointer
// must sit in the Z register pair and the access goes through LPM. The
// pointer is moved there with a register write/read pair threaded
// through the load's chain, then the post-increment form is attempted
// before falling back to the plain one.

func (s *Selector) selectProgMemLoad(id NodeID) error {
	g := s.g
	n := g.Node(id)
	ptr, chain, mem := n.Ops[0], n.Chain, n.Mem

	indexed, haveIndexed := s.matchIndexedProgMemLoad(id)
	if !haveIndexed && mem.Mode != ModeNone {
		// The plain forms read at Z and produce no pointer update, so
		// an indexed load that fails the match has no valid fallback.
		return fmt.Errorf("cannot select indexed program memory load (mode %d, step %d)", mem.Mode, mem.Offset)
	}

	ctr := g.CopyToReg(chain, R31R30, ptr)
	cfr := g.CopyFromReg(ValueRef{ctr, 0}, R31R30, TypeI16)
	g.Node(cfr).Glue = ValueRef{ctr, 1}
	zptr := ValueRef{cfr, 0}
	zchain := ValueRef{cfr, 1}

	var m NodeID
	if haveIndexed {
		m = g.NewMachineNode(indexed, []ValueType{mem.Width, TypePtr, TypeChain}, zptr)
	} else {
		switch mem.Width {
		case TypeI8:
			m = g.NewMachineNode(OpLPMRdZ, []ValueType{TypeI8, TypeChain}, zptr)
		case TypeI16:
			m = g.NewMachineNode(OpLPMWRdZ, []ValueType{TypeI16, TypePtr, TypeChain}, zptr)
		default:
			return fmt.Errorf("program memory load of unsupported type %s", mem.Width)
		}
	}
	mn := g.Node(m)
	mn.Chain = zchain
	mn.Mem = mem
	s.remapLoadResults(id, m)
	return nil
}
