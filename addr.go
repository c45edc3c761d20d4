// Completion: 100% - addressing mode matcher complete
package tinyavr

// Addressing-mode recognition. Failure to match is an ordinary
// control-flow signal; callers fall through to the next strategy.

// matchAddress recognizes a base+displacement operand shape for a
// memory access of the given width. On a match it returns the base
// value and a displacement operand in selected form.
func matchAddress(g *Graph, width ValueType, addr ValueRef) (base, disp ValueRef, ok bool) {
	n := g.Node(addr.Node)

	// A bare frame slot: base is the slot, displacement zero.
	if n.Kind == KindFrameIndex {
		return g.TargetFrameIndex(n.FI), g.TargetConstant(0, TypeI8), true
	}

	if n.Kind != KindAdd && n.Kind != KindSub {
		return ValueRef{}, ValueRef{}, false
	}
	rhs := g.Node(n.Ops[1].Node)
	if rhs.Kind != KindConstant {
		return ValueRef{}, ValueRef{}, false
	}
	offset := rhs.Imm
	if n.Kind == KindSub {
		offset = -offset
	}

	// Frame slot plus constant: match unconditionally with a 16-bit
	// displacement, so large frame offsets fold without extra address
	// arithmetic.
	if lhs := g.Node(n.Ops[0].Node); lhs.Kind == KindFrameIndex {
		return g.TargetFrameIndex(lhs.FI), g.TargetConstant(offset, TypeI16), true
	}

	// Register plus constant: the access width bounds the displacement.
	fits := (width == TypeI8 && offset >= 0 && offset <= 63) ||
		(width == TypeI16 && offset >= 0 && offset < 63)
	if !fits {
		return ValueRef{}, ValueRef{}, false
	}
	return n.Ops[0], g.TargetConstant(offset, TypeI8), true
}

// matchIndexedLoad picks the post-increment or pre-decrement load
// opcode for a non-extending load whose auto-index amount equals the
// access width in bytes. The hardware only supports unit-size steps.
func (s *Selector) matchIndexedLoad(id NodeID) (Opcode, bool) {
	n := s.g.Node(id)
	mem := n.Mem
	if mem.Ext != ExtNone || (mem.Mode != ModePostInc && mem.Mode != ModePreDec) {
		return OpInvalid, false
	}

	pre := mem.Mode == ModePreDec
	switch mem.Width {
	case TypeI8:
		if (!pre && mem.Offset != 1) || (pre && mem.Offset != -1) {
			return OpInvalid, false
		}
		if pre {
			return OpLDRdPtrPd, true
		}
		return OpLDRdPtrPi, true
	case TypeI16:
		if (!pre && mem.Offset != 2) || (pre && mem.Offset != -2) {
			return OpInvalid, false
		}
		if pre {
			return OpLDWRdPtrPd, true
		}
		return OpLDWRdPtrPi, true
	default:
		return OpInvalid, false
	}
}

// matchIndexedProgMemLoad is the program-memory variant: the same
// magnitude rule, but only post-increment exists there.
func (s *Selector) matchIndexedProgMemLoad(id NodeID) (Opcode, bool) {
	n := s.g.Node(id)
	mem := n.Mem
	if mem.Ext != ExtNone || mem.Mode != ModePostInc {
		return OpInvalid, false
	}

	switch mem.Width {
	case TypeI8:
		if mem.Offset != 1 {
			return OpInvalid, false
		}
		return OpLPMRdZPi, true
	case TypeI16:
		if mem.Offset != 2 {
			return OpInvalid, false
		}
		return OpLPMWRdZPi, true
	default:
		return OpInvalid, false
	}
}
