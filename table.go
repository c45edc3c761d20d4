// Completion: 100% - encoding descriptors and generic patterns complete
package tinyavr

// The per-opcode encoding descriptors and the generic pattern table.
// Pseudo opcodes have no descriptor on purpose: they must be expanded
// before emission, and the encoder reports reaching one as a defect.

var encodings = map[Opcode]encodingDesc{
	// ld/st leave one opcode bit implied by the addressing form;
	// loadStorePost fills it in after the fields are placed.
	OpLDRdPtr: {size: 2, bits: 0x8000, post: loadStorePost, fields: []fieldDesc{
		{operand: 0, encode: encGeneric, chunks: []bitChunk{{0, 4, 5}}},
		{operand: 1, encode: encPtrReg, chunks: []bitChunk{{0, 2, 2}}},
	}},
	OpLDRdPtrPi: {size: 2, bits: 0x8001, post: loadStorePost, fields: []fieldDesc{
		{operand: 0, encode: encGeneric, chunks: []bitChunk{{0, 4, 5}}},
		{operand: 1, encode: encPtrReg, chunks: []bitChunk{{0, 2, 2}}},
	}},
	OpLDRdPtrPd: {size: 2, bits: 0x8002, post: loadStorePost, fields: []fieldDesc{
		{operand: 0, encode: encGeneric, chunks: []bitChunk{{0, 4, 5}}},
		{operand: 1, encode: encPtrReg, chunks: []bitChunk{{0, 2, 2}}},
	}},
	OpSTPtrRr: {size: 2, bits: 0x8200, post: loadStorePost, fields: []fieldDesc{
		{operand: 0, encode: encPtrReg, chunks: []bitChunk{{0, 2, 2}}},
		{operand: 1, encode: encGeneric, chunks: []bitChunk{{0, 4, 5}}},
	}},
	OpSTPtrPiRr: {size: 2, bits: 0x8201, post: loadStorePost, fields: []fieldDesc{
		{operand: 0, encode: encPtrReg, chunks: []bitChunk{{0, 2, 2}}},
		{operand: 1, encode: encGeneric, chunks: []bitChunk{{0, 4, 5}}},
	}},
	OpSTPtrPdRr: {size: 2, bits: 0x8202, post: loadStorePost, fields: []fieldDesc{
		{operand: 0, encode: encPtrReg, chunks: []bitChunk{{0, 2, 2}}},
		{operand: 1, encode: encGeneric, chunks: []bitChunk{{0, 4, 5}}},
	}},

	// The displacement forms scatter the combined pointer-select and
	// displacement field across three widely separated bit runs.
	OpLDDRdPtrQ: {size: 2, bits: 0x8000, fields: []fieldDesc{
		{operand: 0, encode: encGeneric, chunks: []bitChunk{{0, 4, 5}}},
		{operand: 1, encode: encMemri, chunks: []bitChunk{
			{0, 0, 3}, {3, 10, 2}, {5, 13, 1}, {6, 3, 1},
		}},
	}},
	OpSTDPtrQRr: {size: 2, bits: 0x8200, fields: []fieldDesc{
		{operand: 0, encode: encMemri, chunks: []bitChunk{
			{0, 0, 3}, {3, 10, 2}, {5, 13, 1}, {6, 3, 1},
		}},
		{operand: 2, encode: encGeneric, chunks: []bitChunk{{0, 4, 5}}},
	}},

	OpLPMRdZ: {size: 2, bits: 0x9004, fields: []fieldDesc{
		{operand: 0, encode: encGeneric, chunks: []bitChunk{{0, 4, 5}}},
	}},
	OpLPMRdZPi: {size: 2, bits: 0x9005, fields: []fieldDesc{
		{operand: 0, encode: encGeneric, chunks: []bitChunk{{0, 4, 5}}},
	}},

	// ldi only reaches r16..r31, so the register field is four bits and
	// dropping the high encoding bit is exactly the -16 rebase.
	OpLDIRdK: {size: 2, bits: 0xE000, fields: []fieldDesc{
		{operand: 0, encode: encGeneric, chunks: []bitChunk{{0, 4, 4}}},
		{operand: 1, encode: encImm8, chunks: []bitChunk{{0, 0, 4}, {4, 8, 4}}},
	}},

	OpADDRdRr: {size: 2, bits: 0x0C00, fields: []fieldDesc{
		{operand: 0, encode: encGeneric, chunks: []bitChunk{{0, 4, 5}}},
		{operand: 1, encode: encGeneric, chunks: []bitChunk{{0, 0, 4}, {4, 9, 1}}},
	}},
	OpSUBRdRr: {size: 2, bits: 0x1800, fields: []fieldDesc{
		{operand: 0, encode: encGeneric, chunks: []bitChunk{{0, 4, 5}}},
		{operand: 1, encode: encGeneric, chunks: []bitChunk{{0, 0, 4}, {4, 9, 1}}},
	}},
	OpANDRdRr: {size: 2, bits: 0x2000, fields: []fieldDesc{
		{operand: 0, encode: encGeneric, chunks: []bitChunk{{0, 4, 5}}},
		{operand: 1, encode: encGeneric, chunks: []bitChunk{{0, 0, 4}, {4, 9, 1}}},
	}},
	// cbr is andi with the mask complemented at encode time.
	OpCBRRdK: {size: 2, bits: 0x7000, fields: []fieldDesc{
		{operand: 0, encode: encGeneric, chunks: []bitChunk{{0, 4, 4}}},
		{operand: 1, encode: encComplement, chunks: []bitChunk{{0, 0, 4}, {4, 8, 4}}},
	}},

	OpRJMPk: {size: 2, bits: 0xC000, fields: []fieldDesc{
		{operand: 0, encode: encRelBranch13, chunks: []bitChunk{{0, 0, 12}}},
	}},
	OpRCALLk: {size: 2, bits: 0xD000, fields: []fieldDesc{
		{operand: 0, encode: encRelBranch13, chunks: []bitChunk{{0, 0, 12}}},
	}},
	OpBREQk: {size: 2, bits: 0xF001, fields: []fieldDesc{
		{operand: 0, encode: encRelBranch7, chunks: []bitChunk{{0, 3, 7}}},
	}},
	OpBRNEk: {size: 2, bits: 0xF401, fields: []fieldDesc{
		{operand: 0, encode: encRelBranch7, chunks: []bitChunk{{0, 3, 7}}},
	}},

	// Two-word forms: the 22-bit word address splits across both words.
	OpCALLk: {size: 4, bits: 0x940E, fields: []fieldDesc{
		{operand: 0, encode: encCallTarget, chunks: []bitChunk{
			{0, 16, 16}, {16, 0, 1}, {17, 4, 5},
		}},
	}},
	OpJMPk: {size: 4, bits: 0x940C, fields: []fieldDesc{
		{operand: 0, encode: encCallTarget, chunks: []bitChunk{
			{0, 16, 16}, {16, 0, 1}, {17, 4, 5},
		}},
	}},

	OpICALL: {size: 2, bits: 0x9509},
	OpIJMP:  {size: 2, bits: 0x9409},
}

// BasePatterns is the fallback shape table the selector consults for
// everything the hand-written helpers decline. It covers the plain
// arithmetic, constant materialization, simple memory access and direct
// call shapes.
type BasePatterns struct {
	ST *Subtarget
}

// NewBasePatterns returns the table tuned for the given device.
func NewBasePatterns(st *Subtarget) *BasePatterns {
	return &BasePatterns{ST: st}
}

func (p *BasePatterns) Match(g *Graph, id NodeID) (NodeID, bool) {
	n := g.Node(id)
	switch n.Kind {
	case KindAdd:
		return p.matchBinOp(g, id, OpADDRdRr)
	case KindSub:
		return p.matchBinOp(g, id, OpSUBRdRr)
	case KindAnd:
		return p.matchBinOp(g, id, OpANDRdRr)
	case KindConstant:
		return p.matchConstant(g, id)
	case KindGlobalAddress:
		sym := g.TargetGlobalAddress(n.Sym, n.Imm)
		return g.NewMachineNode(OpLDIWRdK, []ValueType{TypePtr}, sym), true
	case KindExternalSymbol:
		sym := g.TargetExternalSymbol(n.Sym)
		return g.NewMachineNode(OpLDIWRdK, []ValueType{TypePtr}, sym), true
	case KindLoad:
		return p.matchLoad(g, id)
	case KindStore:
		return p.matchStore(g, id)
	case KindCall:
		return p.matchDirectCall(g, id)
	case KindInlineAsm:
		// Already in its final operand form; re-emit unchanged.
		return id, true
	}
	return 0, false
}

func (p *BasePatterns) matchBinOp(g *Graph, id NodeID, op Opcode) (NodeID, bool) {
	n := g.Node(id)
	if n.Types[0] != TypeI8 || len(n.Ops) != 2 {
		return 0, false
	}
	lhs, rhs := n.Ops[0], n.Ops[1]
	return g.NewMachineNode(op, []ValueType{TypeI8}, lhs, rhs), true
}

func (p *BasePatterns) matchConstant(g *Graph, id NodeID) (NodeID, bool) {
	n := g.Node(id)
	t := n.Types[0]
	imm := n.Imm
	switch t {
	case TypeI8:
		k := g.TargetConstant(imm, TypeI8)
		return g.NewMachineNode(OpLDIRdK, []ValueType{TypeI8}, k), true
	case TypeI16, TypePtr:
		k := g.TargetConstant(imm, t)
		return g.NewMachineNode(OpLDIWRdK, []ValueType{t}, k), true
	}
	return 0, false
}

func (p *BasePatterns) matchLoad(g *Graph, id NodeID) (NodeID, bool) {
	n := g.Node(id)
	mem := n.Mem
	if mem.Space != SpaceData || mem.Mode != ModeNone || mem.Ext != ExtNone {
		return 0, false
	}
	addr, chain := n.Ops[0], n.Chain

	var m NodeID
	if base, disp, ok := matchAddress(g, mem.Width, addr); ok {
		op := OpLDDRdPtrQ
		if mem.Width == TypeI16 {
			op = OpLDDWRdPtrQ
		}
		m = g.NewMachineNode(op, []ValueType{mem.Width, TypeChain}, base, disp)
	} else {
		op := OpLDRdPtr
		if mem.Width == TypeI16 {
			op = OpLDWRdPtr
		}
		m = g.NewMachineNode(op, []ValueType{mem.Width, TypeChain}, addr)
	}
	mn := g.Node(m)
	mn.Chain = chain
	mn.Mem = mem
	return m, true
}

func (p *BasePatterns) matchStore(g *Graph, id NodeID) (NodeID, bool) {
	n := g.Node(id)
	mem := n.Mem
	if mem.Space != SpaceData || mem.Mode != ModeNone {
		return 0, false
	}
	val, addr, chain := n.Ops[0], n.Ops[1], n.Chain

	var m NodeID
	if base, disp, ok := matchAddress(g, mem.Width, addr); ok {
		op := OpSTDPtrQRr
		if mem.Width == TypeI16 {
			op = OpSTDWPtrQRr
		}
		m = g.NewMachineNode(op, []ValueType{TypeChain}, base, disp, val)
	} else {
		op := OpSTPtrRr
		if mem.Width == TypeI16 {
			op = OpSTWPtrRr
		}
		m = g.NewMachineNode(op, []ValueType{TypeChain}, addr, val)
	}
	mn := g.Node(m)
	mn.Chain = chain
	mn.Mem = mem
	return m, true
}

func (p *BasePatterns) matchDirectCall(g *Graph, id NodeID) (NodeID, bool) {
	n := g.Node(id)
	callee := n.Ops[0]
	args := append([]ValueRef(nil), n.Ops[1:]...)
	chain, glue := n.Chain, n.Glue

	var target ValueRef
	switch cn := g.Node(callee.Node); cn.Kind {
	case KindGlobalAddress:
		target = g.TargetGlobalAddress(cn.Sym, cn.Imm)
	case KindExternalSymbol:
		target = g.TargetExternalSymbol(cn.Sym)
	case KindTargetGlobal, KindTargetExternalSymbol:
		target = callee
	default:
		return 0, false
	}

	// Devices without the long call use the pc-relative form.
	op := OpCALLk
	if p.ST != nil && !p.ST.HasJMPCALL {
		op = OpRCALLk
	}
	ops := append([]ValueRef{target}, args...)
	m := g.NewMachineNode(op, []ValueType{TypeChain, TypeGlue}, ops...)
	mn := g.Node(m)
	mn.Chain = chain
	mn.Glue = glue
	return m, true
}
