package tinyavr

import (
	"testing"
)

func avr5Patterns(t *testing.T) *BasePatterns {
	t.Helper()
	st, err := NewSubtarget("avr5")
	if err != nil {
		t.Fatal(err)
	}
	return NewBasePatterns(st)
}

// machineNodes returns the live machine nodes with the given opcode.
func machineNodes(g *Graph, op Opcode) []NodeID {
	var out []NodeID
	for i := NodeID(1); int(i) < g.NumNodes(); i++ {
		if g.Dead(i) {
			continue
		}
		if n := g.Node(i); n.Kind == KindMachine && n.Op == op {
			out = append(out, i)
		}
	}
	return out
}

// copyToPhysReg returns the live CopyToReg node writing the given
// physical register, or 0.
func copyToPhysReg(g *Graph, r Reg) NodeID {
	for i := NodeID(1); int(i) < g.NumNodes(); i++ {
		if g.Dead(i) {
			continue
		}
		n := g.Node(i)
		if n.Kind == KindCopyToReg && g.Node(n.Ops[0].Node).Reg == r {
			return i
		}
	}
	return 0
}

func TestSelectFrameIndex(t *testing.T) {
	g := NewGraph()
	fi := g.FrameIndex(3)
	user := g.CopyToReg(g.Entry, g.NewVirtualReg(ClassPTRREGS), fi)

	s := NewSelector(g, avr5Patterns(t))
	if err := s.SelectFunction(); err != nil {
		t.Fatal(err)
	}

	ms := machineNodes(g, OpFRMIDX)
	if len(ms) != 1 {
		t.Fatalf("got %d FRMIDX nodes, want 1", len(ms))
	}
	m := g.Node(ms[0])
	if fn := g.Node(m.Ops[0].Node); fn.Kind != KindTargetFrameIndex || fn.FI != 3 {
		t.Errorf("first operand = %s fi=%d, want TargetFrameIndex fi=3", fn.Kind, fn.FI)
	}
	if off := g.Node(m.Ops[1].Node); off.Kind != KindTargetConstant || off.Imm != 0 || off.Types[0] != TypeI16 {
		t.Errorf("second operand = %s %d %s, want TargetConstant 0 i16", off.Kind, off.Imm, off.Types[0])
	}
	if got := g.Node(user).Ops[1]; got != (ValueRef{ms[0], 0}) {
		t.Errorf("user not remapped onto FRMIDX")
	}
}

func TestSelectStackStore(t *testing.T) {
	g := NewGraph()
	sp := g.Register(SP, TypeI16)
	addr := g.Binary(KindAdd, TypePtr, sp, g.Constant(7, TypeI16))
	val := g.Constant(5, TypeI8)
	g.Store(g.Entry, val, addr, MemInfo{Width: TypeI8, Space: SpaceData})

	s := NewSelector(g, avr5Patterns(t))
	if err := s.SelectFunction(); err != nil {
		t.Fatal(err)
	}

	ms := machineNodes(g, OpSTDSPQRr)
	if len(ms) != 1 {
		t.Fatalf("got %d STDSPQRr nodes, want 1", len(ms))
	}
	m := g.Node(ms[0])
	if m.Chain != g.Entry {
		t.Error("chain not carried over")
	}
	if off := g.Node(m.Ops[1].Node); off.Kind != KindTargetConstant || off.Imm != 7 {
		t.Errorf("offset operand = %s %d, want TargetConstant 7", off.Kind, off.Imm)
	}
	if m.Mem == nil || m.Mem.Width != TypeI8 {
		t.Error("memory info not carried over")
	}
	if v := g.Node(m.Ops[2].Node); v.Kind != KindMachine || v.Op != OpLDIRdK {
		t.Errorf("value operand = %s, want selected LDIRdK", v.Kind)
	}
	if !g.Dead(addr.Node) {
		t.Error("folded address arithmetic still live")
	}
}

func TestSelectWordStackStore(t *testing.T) {
	g := NewGraph()
	sp := g.Register(SP, TypeI16)
	addr := g.Binary(KindAdd, TypePtr, sp, g.Constant(2, TypeI16))
	val := g.Constant(0x1234, TypeI16)
	g.Store(g.Entry, val, addr, MemInfo{Width: TypeI16, Space: SpaceData})

	s := NewSelector(g, avr5Patterns(t))
	if err := s.SelectFunction(); err != nil {
		t.Fatal(err)
	}
	if ms := machineNodes(g, OpSTDWSPQRr); len(ms) != 1 {
		t.Fatalf("got %d STDWSPQRr nodes, want 1", len(ms))
	}
}

func TestSelectLoadWithDisplacement(t *testing.T) {
	g := NewGraph()
	cfr := g.CopyFromReg(g.Entry, g.NewVirtualReg(ClassPTRDISP), TypePtr)
	base := ValueRef{cfr, 0}
	addr := g.Binary(KindAdd, TypePtr, base, g.Constant(3, TypeI16))
	ld := g.Load(ValueRef{cfr, 1}, addr, MemInfo{Width: TypeI8, Space: SpaceData})
	user := g.CopyToReg(ValueRef{ld, 1}, g.NewVirtualReg(ClassGPR8), ValueRef{ld, 0})

	s := NewSelector(g, avr5Patterns(t))
	if err := s.SelectFunction(); err != nil {
		t.Fatal(err)
	}

	ms := machineNodes(g, OpLDDRdPtrQ)
	if len(ms) != 1 {
		t.Fatalf("got %d LDDRdPtrQ nodes, want 1", len(ms))
	}
	m := g.Node(ms[0])
	if m.Ops[0] != base {
		t.Error("base not folded")
	}
	if off := g.Node(m.Ops[1].Node); off.Kind != KindTargetConstant || off.Imm != 3 {
		t.Errorf("displacement operand = %s %d, want TargetConstant 3", off.Kind, off.Imm)
	}
	if got := g.Node(user).Ops[1]; got != (ValueRef{ms[0], 0}) {
		t.Error("load value user not remapped")
	}
}

func TestSelectPlainStore(t *testing.T) {
	g := NewGraph()
	cfr := g.CopyFromReg(g.Entry, g.NewVirtualReg(ClassPTRREGS), TypePtr)
	val := g.Constant(9, TypeI8)
	g.Store(ValueRef{cfr, 1}, val, ValueRef{cfr, 0}, MemInfo{Width: TypeI8, Space: SpaceData})

	s := NewSelector(g, avr5Patterns(t))
	if err := s.SelectFunction(); err != nil {
		t.Fatal(err)
	}
	if ms := machineNodes(g, OpSTPtrRr); len(ms) != 1 {
		t.Fatalf("got %d STPtrRr nodes, want 1", len(ms))
	}
}

func TestSelectIndexedLoad(t *testing.T) {
	g := NewGraph()
	cfr := g.CopyFromReg(g.Entry, g.NewVirtualReg(ClassPTRREGS), TypePtr)
	ld := g.Load(ValueRef{cfr, 1}, ValueRef{cfr, 0},
		MemInfo{Width: TypeI8, Space: SpaceData, Mode: ModePostInc, Offset: 1})
	valUser := g.CopyToReg(ValueRef{ld, 2}, g.NewVirtualReg(ClassGPR8), ValueRef{ld, 0})
	ptrUser := g.CopyToReg(ValueRef{valUser, 0}, g.NewVirtualReg(ClassPTRREGS), ValueRef{ld, 1})

	s := NewSelector(g, avr5Patterns(t))
	if err := s.SelectFunction(); err != nil {
		t.Fatal(err)
	}

	ms := machineNodes(g, OpLDRdPtrPi)
	if len(ms) != 1 {
		t.Fatalf("got %d LDRdPtrPi nodes, want 1", len(ms))
	}
	if got := g.Node(valUser).Ops[1]; got != (ValueRef{ms[0], 0}) {
		t.Error("value result not remapped")
	}
	if got := g.Node(ptrUser).Ops[1]; got != (ValueRef{ms[0], 1}) {
		t.Error("pointer update result not remapped")
	}
}

func TestSelectProgMemLoad(t *testing.T) {
	g := NewGraph()
	cfr := g.CopyFromReg(g.Entry, g.NewVirtualReg(ClassPTRREGS), TypePtr)
	ld := g.Load(ValueRef{cfr, 1}, ValueRef{cfr, 0},
		MemInfo{Width: TypeI8, Space: SpaceProgram})
	user := g.CopyToReg(ValueRef{ld, 1}, g.NewVirtualReg(ClassGPR8), ValueRef{ld, 0})

	s := NewSelector(g, avr5Patterns(t))
	if err := s.SelectFunction(); err != nil {
		t.Fatal(err)
	}

	ms := machineNodes(g, OpLPMRdZ)
	if len(ms) != 1 {
		t.Fatalf("got %d LPMRdZ nodes, want 1", len(ms))
	}
	ctr := copyToPhysReg(g, R31R30)
	if ctr == 0 {
		t.Fatal("pointer not copied into the Z pair")
	}

	// The Z read is glued to the write and the load chains through it.
	m := g.Node(ms[0])
	zread := g.Node(m.Ops[0].Node)
	if zread.Kind != KindCopyFromReg {
		t.Fatalf("lpm pointer operand = %s, want CopyFromReg", zread.Kind)
	}
	if zread.Glue != (ValueRef{ctr, 1}) {
		t.Error("Z read not glued to the Z write")
	}
	if m.Chain != (ValueRef{m.Ops[0].Node, 1}) {
		t.Error("lpm not chained through the Z read")
	}
	if got := g.Node(user).Ops[1]; got != (ValueRef{ms[0], 0}) {
		t.Error("load value user not remapped")
	}
}

func TestSelectProgMemLoadPostInc(t *testing.T) {
	g := NewGraph()
	cfr := g.CopyFromReg(g.Entry, g.NewVirtualReg(ClassPTRREGS), TypePtr)
	ld := g.Load(ValueRef{cfr, 1}, ValueRef{cfr, 0},
		MemInfo{Width: TypeI8, Space: SpaceProgram, Mode: ModePostInc, Offset: 1})
	g.CopyToReg(ValueRef{ld, 2}, g.NewVirtualReg(ClassGPR8), ValueRef{ld, 0})

	s := NewSelector(g, avr5Patterns(t))
	if err := s.SelectFunction(); err != nil {
		t.Fatal(err)
	}
	if ms := machineNodes(g, OpLPMRdZPi); len(ms) != 1 {
		t.Fatalf("got %d LPMRdZPi nodes, want 1", len(ms))
	}
}

// Program memory has no pre-decrement access and the plain LPM forms
// carry no pointer update, so an indexed load outside the
// post-increment shape must fail instead of silently dropping the
// update.
func TestSelectProgMemLoadPreDecFails(t *testing.T) {
	tests := []struct {
		name string
		mem  MemInfo
	}{
		{"predec", MemInfo{Width: TypeI8, Space: SpaceProgram, Mode: ModePreDec, Offset: -1}},
		{"wrong step", MemInfo{Width: TypeI8, Space: SpaceProgram, Mode: ModePostInc, Offset: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGraph()
			cfr := g.CopyFromReg(g.Entry, g.NewVirtualReg(ClassPTRREGS), TypePtr)
			ld := g.Load(ValueRef{cfr, 1}, ValueRef{cfr, 0}, tt.mem)
			g.CopyToReg(ValueRef{ld, 2}, g.NewVirtualReg(ClassGPR8), ValueRef{ld, 0})

			s := NewSelector(g, avr5Patterns(t))
			if err := s.SelectFunction(); err == nil {
				t.Fatal("selection succeeded, want error")
			}
		})
	}
}

func TestSelectIndirectCall(t *testing.T) {
	g := NewGraph()
	cfr := g.CopyFromReg(g.Entry, g.NewVirtualReg(ClassDREGS), TypeI16)
	g.Call(ValueRef{cfr, 1}, ValueRef{cfr, 0})

	s := NewSelector(g, avr5Patterns(t))
	if err := s.SelectFunction(); err != nil {
		t.Fatal(err)
	}

	ms := machineNodes(g, OpICALL)
	if len(ms) != 1 {
		t.Fatalf("got %d ICALL nodes, want 1", len(ms))
	}
	ctr := copyToPhysReg(g, R31R30)
	if ctr == 0 {
		t.Fatal("callee not copied into the Z pair")
	}
	m := g.Node(ms[0])
	if m.Chain != (ValueRef{ctr, 0}) || m.Glue != (ValueRef{ctr, 1}) {
		t.Error("icall not chained and glued to the Z write")
	}
	if rn := g.Node(m.Ops[0].Node); rn.Kind != KindRegister || rn.Reg != R31R30 {
		t.Errorf("first operand = %s %s, want the Z register", rn.Kind, rn.Reg.Name())
	}
}

func TestSelectDirectCall(t *testing.T) {
	g := NewGraph()
	callee := g.GlobalAddress("blink", 0)
	g.Call(g.Entry, callee)

	s := NewSelector(g, avr5Patterns(t))
	if err := s.SelectFunction(); err != nil {
		t.Fatal(err)
	}

	ms := machineNodes(g, OpCALLk)
	if len(ms) != 1 {
		t.Fatalf("got %d CALLk nodes, want 1", len(ms))
	}
	if tn := g.Node(g.Node(ms[0]).Ops[0].Node); tn.Kind != KindTargetGlobal || tn.Sym != "blink" {
		t.Errorf("target = %s %q, want TargetGlobal blink", tn.Kind, tn.Sym)
	}
}

func TestSelectDirectCallWithoutLongCall(t *testing.T) {
	st, err := NewSubtarget("avr2")
	if err != nil {
		t.Fatal(err)
	}
	g := NewGraph()
	g.Call(g.Entry, g.GlobalAddress("blink", 0))

	s := NewSelector(g, NewBasePatterns(st))
	if err := s.SelectFunction(); err != nil {
		t.Fatal(err)
	}
	if ms := machineNodes(g, OpRCALLk); len(ms) != 1 {
		t.Fatalf("got %d RCALLk nodes, want 1", len(ms))
	}
}

func TestSelectIndirectBranch(t *testing.T) {
	g := NewGraph()
	cfr := g.CopyFromReg(g.Entry, g.NewVirtualReg(ClassDREGS), TypeI16)
	g.BrInd(ValueRef{cfr, 1}, ValueRef{cfr, 0})

	s := NewSelector(g, avr5Patterns(t))
	if err := s.SelectFunction(); err != nil {
		t.Fatal(err)
	}

	ms := machineNodes(g, OpIJMP)
	if len(ms) != 1 {
		t.Fatalf("got %d IJMP nodes, want 1", len(ms))
	}
	ctr := copyToPhysReg(g, R31R30)
	if ctr == 0 {
		t.Fatal("target not copied into the Z pair")
	}
	if g.Node(ms[0]).Chain != (ValueRef{ctr, 0}) {
		t.Error("ijmp not chained to the Z write")
	}
	if g.Node(ms[0]).Glue.Valid() {
		t.Error("ijmp should not be glued")
	}
}

func TestSelectBinaryOps(t *testing.T) {
	tests := []struct {
		kind NodeKind
		want Opcode
	}{
		{KindAdd, OpADDRdRr},
		{KindSub, OpSUBRdRr},
		{KindAnd, OpANDRdRr},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			g := NewGraph()
			a := g.CopyFromReg(g.Entry, g.NewVirtualReg(ClassGPR8), TypeI8)
			b := g.CopyFromReg(ValueRef{a, 1}, g.NewVirtualReg(ClassGPR8), TypeI8)
			v := g.Binary(tt.kind, TypeI8, ValueRef{a, 0}, ValueRef{b, 0})
			g.CopyToReg(ValueRef{b, 1}, g.NewVirtualReg(ClassGPR8), v)

			s := NewSelector(g, avr5Patterns(t))
			if err := s.SelectFunction(); err != nil {
				t.Fatal(err)
			}
			if ms := machineNodes(g, tt.want); len(ms) != 1 {
				t.Fatalf("got %d %s nodes, want 1", len(ms), tt.want)
			}
		})
	}
}

func TestSelectConstants(t *testing.T) {
	g := NewGraph()
	c8 := g.Constant(42, TypeI8)
	c16 := g.Constant(0x1234, TypeI16)
	ctr := g.CopyToReg(g.Entry, g.NewVirtualReg(ClassGPR8), c8)
	g.CopyToReg(ValueRef{ctr, 0}, g.NewVirtualReg(ClassDREGS), c16)

	s := NewSelector(g, avr5Patterns(t))
	if err := s.SelectFunction(); err != nil {
		t.Fatal(err)
	}
	if ms := machineNodes(g, OpLDIRdK); len(ms) != 1 {
		t.Fatalf("got %d LDIRdK nodes, want 1", len(ms))
	}
	ms := machineNodes(g, OpLDIWRdK)
	if len(ms) != 1 {
		t.Fatalf("got %d LDIWRdK nodes, want 1", len(ms))
	}
	if kn := g.Node(g.Node(ms[0]).Ops[0].Node); kn.Kind != KindTargetConstant || kn.Imm != 0x1234 {
		t.Errorf("operand = %s %#x, want TargetConstant 0x1234", kn.Kind, kn.Imm)
	}
}

func TestSelectUnsupportedNodeFails(t *testing.T) {
	g := NewGraph()
	a := g.CopyFromReg(g.Entry, g.NewVirtualReg(ClassDREGS), TypeI16)
	v := g.Binary(KindAnd, TypeI16, ValueRef{a, 0}, ValueRef{a, 0})
	g.CopyToReg(ValueRef{a, 1}, g.NewVirtualReg(ClassDREGS), v)

	s := NewSelector(g, avr5Patterns(t))
	if err := s.SelectFunction(); err == nil {
		t.Fatal("16-bit bitwise op selected, want error")
	}
}

func TestSelectionIsIdempotent(t *testing.T) {
	g := NewGraph()
	g.Call(g.Entry, g.GlobalAddress("f", 0))

	s := NewSelector(g, avr5Patterns(t))
	if err := s.SelectFunction(); err != nil {
		t.Fatal(err)
	}
	before := len(machineNodes(g, OpCALLk))
	if err := s.SelectFunction(); err != nil {
		t.Fatalf("second pass failed: %v", err)
	}
	if after := len(machineNodes(g, OpCALLk)); after != before {
		t.Errorf("second pass changed the graph: %d -> %d CALLk nodes", before, after)
	}
}
