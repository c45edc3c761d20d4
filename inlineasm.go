// Completion: 100% - inline assembly operand legalization complete
package tinyavr

// A hardware quirk requires certain paired 8-bit registers to cross the
// inline-assembly boundary as one opaque composite register, while
// source-level constraints only ever name the individual registers.
// The legalizer rewrites each two-register operand group into a single
// composite virtual register and patches the flag word accordingly.

// Inline-assembly operand kinds, stored in the low bits of each operand
// flag word.
const (
	AsmKindRegUse             = 1
	AsmKindRegDef             = 2
	AsmKindRegDefEarlyClobber = 3
	AsmKindClobber            = 4
	AsmKindImm                = 5
	AsmKindMem                = 6
)

const asmTiedBit uint32 = 1 << 31

// asmFlagWord builds a flag word from a kind and register count.
func asmFlagWord(kind, numRegs int) uint32 {
	return uint32(kind) | uint32(numRegs)<<3
}

// asmFlagKind extracts the operand kind.
func asmFlagKind(f uint32) int {
	return int(f & 7)
}

// asmFlagNumRegs extracts the register count of the operand group.
func asmFlagNumRegs(f uint32) int {
	return int(f>>3) & 0x1fff
}

// asmFlagWithRegClass attaches a register-class constraint.
func asmFlagWithRegClass(f uint32, c RegClass) uint32 {
	return f | (uint32(c)+1)<<16
}

// asmFlagRegClass extracts the register-class constraint, if any.
func asmFlagRegClass(f uint32) (RegClass, bool) {
	if f&asmTiedBit != 0 {
		return ClassNone, false
	}
	rc := (f >> 16) & 0x7fff
	if rc == 0 {
		return ClassNone, false
	}
	return RegClass(rc - 1), true
}

// asmFlagWithTiedTo marks a use operand as tied to the definition with
// the given operand-group index.
func asmFlagWithTiedTo(f uint32, def int) uint32 {
	return (f &^ (0x7fff << 16)) | uint32(def)<<16 | asmTiedBit
}

// asmFlagTiedTo extracts the tied definition index, if the operand is
// tied.
func asmFlagTiedTo(f uint32) (int, bool) {
	if f&asmTiedBit == 0 {
		return 0, false
	}
	return int((f >> 16) & 0x7fff), true
}

// quadNode assembles four 8-bit values into a composite quad value via
// a REG_SEQUENCE machine node.
func (g *Graph) quadNode(v0, v1, v2, v3 ValueRef) NodeID {
	return g.NewMachineNode(OpRegSequence, []ValueType{TypeUntyped},
		g.TargetConstant(int64(ClassGPR8Quad), TypeUntyped),
		v0, g.TargetConstant(QSub0, TypeI8),
		v1, g.TargetConstant(QSub1, TypeI8),
		v2, g.TargetConstant(QSub2, TypeI8),
		v3, g.TargetConstant(QSub3, TypeI8))
}

// extractSubreg pulls one 8-bit slot out of a composite value.
func (g *Graph) extractSubreg(sub int64, t ValueType, v ValueRef) ValueRef {
	id := g.NewMachineNode(OpExtractSubreg, []ValueType{t}, v,
		g.TargetConstant(sub, TypeI8))
	return ValueRef{id, 0}
}

// glueUser returns the node consuming the given glue value, or 0.
func (g *Graph) glueUser(v ValueRef) NodeID {
	for i := NodeID(1); int(i) < g.NumNodes(); i++ {
		if g.Dead(i) {
			continue
		}
		if g.Node(i).Glue == v {
			return i
		}
	}
	return 0
}

// selectInlineAsm scans the operand list and replaces every
// two-register group drawn from the paired-capable class with one
// composite register. It reports whether a replacement node was
// emitted; with nothing to rewrite the caller falls through and the
// original node is reused as-is.
func (s *Selector) selectInlineAsm(id NodeID) bool {
	g := s.g
	orig := g.Node(id)
	ops := append([]ValueRef(nil), orig.Ops...)
	chain := orig.Chain
	glue := orig.Glue
	asmStr := orig.Sym

	// The downstream glue user is looked up before any rewriting so the
	// def-case copies built below cannot shadow it.
	downstream := g.glueUser(ValueRef{id, 1})

	var out []ValueRef
	var opChanged []bool
	changed := false

	for i := 0; i < len(ops); {
		op := ops[i]
		fn := g.Node(op.Node)
		if fn.Kind != KindTargetConstant {
			out = append(out, op)
			i++
			continue
		}
		flag := uint32(fn.Imm)
		kind := asmFlagKind(flag)

		// Immediate operands are a flag word plus a value word; both are
		// copied untouched.
		if kind == AsmKindImm {
			out = append(out, op, ops[i+1])
			opChanged = append(opChanged, false)
			i += 2
			continue
		}

		numRegs := asmFlagNumRegs(flag)
		group := ops[i+1 : i+1+numRegs]

		tiedTo, isTied := asmFlagTiedTo(flag)
		tiedToChanged := false
		if changed && isTied && tiedTo < len(opChanged) {
			tiedToChanged = opChanged[tiedTo]
		}

		rewrite := numRegs == 2 &&
			(kind == AsmKindRegUse || kind == AsmKindRegDef || kind == AsmKindRegDefEarlyClobber)
		if rewrite && !tiedToChanged {
			rc, hasRC := asmFlagRegClass(flag)
			rewrite = hasRC && rc == ClassGPR8
		}
		if !rewrite {
			out = append(out, op)
			out = append(out, group...)
			opChanged = append(opChanged, false)
			i += 1 + numRegs
			continue
		}

		reg0 := g.Node(group[0].Node).Reg
		reg1 := g.Node(group[1].Node).Reg
		gpvr := g.NewVirtualReg(ClassGPR8Quad)
		paired := g.Register(gpvr, TypeUntyped)

		if kind == AsmKindRegDef || kind == AsmKindRegDefEarlyClobber {
			// Read the composite out of the asm result, extract the two
			// live slots, and copy them back into the original registers
			// in sequence.
			cfr := g.CopyFromReg(ValueRef{id, 0}, gpvr, TypeUntyped)
			g.Node(cfr).Glue = ValueRef{id, 1}
			sub0 := g.extractSubreg(QSub0, TypeI8, ValueRef{cfr, 0})
			sub1 := g.extractSubreg(QSub1, TypeI8, ValueRef{cfr, 0})
			t0 := g.CopyToReg(ValueRef{cfr, 1}, reg0, sub0)
			t1 := g.CopyToReg(ValueRef{t0, 0}, reg1, sub1)
			if downstream != 0 {
				g.Node(downstream).Glue = ValueRef{t1, 1}
			}
		} else {
			// Use: read the two registers, assemble a composite, and
			// substitute it as the single asm input. The two unused
			// slots carry a duplicate of the second value; downstream
			// consumers only ever read slots 0 and 1, but the slots
			// must stay defined.
			t0 := g.CopyFromReg(chain, reg0, TypeI8)
			t1 := g.CopyFromReg(ValueRef{t0, 1}, reg1, TypeI8)
			quad := g.quadNode(ValueRef{t0, 0}, ValueRef{t1, 0}, ValueRef{t1, 0}, ValueRef{t1, 0})
			ctr := g.CopyToReg(ValueRef{t1, 1}, gpvr, ValueRef{quad, 0})
			chain = ValueRef{ctr, 0}
			glue = ValueRef{ctr, 1}
		}

		changed = true
		opChanged = append(opChanged, true)

		newFlag := asmFlagWord(kind, 1)
		if isTied {
			newFlag = asmFlagWithTiedTo(newFlag, tiedTo)
		} else {
			newFlag = asmFlagWithRegClass(newFlag, ClassGPR8Quad)
		}
		out = append(out, g.TargetConstant(int64(newFlag), TypeUntyped), paired)
		i += 1 + numRegs
	}

	if !changed {
		return false
	}

	m := g.NewNode(KindInlineAsm, []ValueType{TypeChain, TypeGlue}, out...)
	mn := g.Node(m)
	mn.Sym = asmStr
	mn.Chain = chain
	mn.Glue = glue
	g.ReplaceNode(id, m)
	return true
}

// SelectInlineAsmMemoryOperand resolves an inline-asm memory constraint
// to the operand list the asm node expects: a displacement-capable
// register (optionally with an offset), or the address funnelled
// through a fresh pointer-class virtual register.
func (s *Selector) SelectInlineAsmMemoryOperand(op ValueRef) ([]ValueRef, bool) {
	g := s.g
	n := g.Node(op.Node)

	// Already a displacement-capable register: nothing to do.
	if n.Kind == KindRegister && g.RegClassOf(n.Reg) == ClassPTRDISP {
		return []ValueRef{op}, true
	}

	if n.Kind == KindFrameIndex {
		if base, disp, ok := matchAddress(g, TypeI8, op); ok {
			return []ValueRef{base, disp}, true
		}
		return nil, false
	}

	// reg+imm with a small offset and a pointer-capable (or still
	// virtual) base: re-class the base when needed.
	if n.Kind == KindAdd || n.Kind == KindSub {
		baseRef, immRef := n.Ops[0], n.Ops[1]
		imm := g.Node(immRef.Node)
		base := g.Node(baseRef.Node)
		if imm.Kind == KindConstant && imm.Imm >= 0 && imm.Imm < 64 &&
			base.Kind == KindCopyFromReg {
			r := g.Node(base.Ops[0].Node).Reg
			if r.IsVirtual() || InClass(r, ClassPTRDISP) {
				immVal := imm.Imm
				immType := g.ValueType(immRef)
				if g.RegClassOf(r) != ClassPTRDISP {
					vr := g.NewVirtualReg(ClassPTRDISP)
					ctr := g.CopyToReg(ValueRef{baseRef.Node, 1}, vr, baseRef)
					cfr := g.CopyFromReg(ValueRef{ctr, 0}, vr, TypePtr)
					baseRef = ValueRef{cfr, 0}
				}
				disp := immRef
				if immType != TypeI8 {
					disp = g.TargetConstant(immVal, TypeI8)
				}
				return []ValueRef{baseRef, disp}, true
			}
		}
	}

	// The generic case: put the address into a fresh pointer-class
	// register and hand that to the asm.
	vr := g.NewVirtualReg(ClassPTRDISP)
	ctr := g.CopyToReg(g.Entry, vr, op)
	cfr := g.CopyFromReg(ValueRef{ctr, 0}, vr, TypePtr)
	return []ValueRef{{cfr, 0}}, true
}
