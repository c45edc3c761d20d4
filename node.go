// Completion: 100% - node graph and arena complete
package tinyavr

import (
	"fmt"
	"os"
)

// The selection graph. Nodes live in an arena and are addressed by stable
// integer handles; replacing a node means inserting the replacement and
// redirecting every use of the old handle, never mutating shared pointers.

// ValueType is the semantic type of one node result slot.
type ValueType uint8

const (
	TypeNone    ValueType = iota
	TypeI8                // 8-bit integer
	TypeI16               // 16-bit integer
	TypePtr               // 16-bit data pointer
	TypeChain             // side-effect ordering token
	TypeGlue              // inseparable-scheduling token
	TypeUntyped           // opaque composite (quad register values)
)

func (t ValueType) String() string {
	switch t {
	case TypeI8:
		return "i8"
	case TypeI16:
		return "i16"
	case TypePtr:
		return "ptr"
	case TypeChain:
		return "chain"
	case TypeGlue:
		return "glue"
	case TypeUntyped:
		return "untyped"
	default:
		return "none"
	}
}

// Bits returns the width of a data value type in bits, or 0 for tokens.
func (t ValueType) Bits() int {
	switch t {
	case TypeI8:
		return 8
	case TypeI16, TypePtr:
		return 16
	default:
		return 0
	}
}

// NodeKind tags a node in the closed pre/post-selection vocabulary.
type NodeKind uint8

const (
	KindInvalid NodeKind = iota

	// Pre-selection (architecture-independent) kinds.
	KindEntryToken
	KindConstant
	KindFrameIndex
	KindGlobalAddress
	KindExternalSymbol
	KindRegister
	KindCopyToReg
	KindCopyFromReg
	KindLoad
	KindStore
	KindAdd
	KindSub
	KindAnd
	KindCall
	KindBrInd
	KindInlineAsm

	// Operand forms introduced during selection.
	KindTargetConstant
	KindTargetFrameIndex
	KindTargetGlobal
	KindTargetExternalSymbol

	// A selected machine instruction; Node.Op holds the opcode.
	KindMachine
)

func (k NodeKind) String() string {
	switch k {
	case KindEntryToken:
		return "EntryToken"
	case KindConstant:
		return "Constant"
	case KindFrameIndex:
		return "FrameIndex"
	case KindGlobalAddress:
		return "GlobalAddress"
	case KindExternalSymbol:
		return "ExternalSymbol"
	case KindRegister:
		return "Register"
	case KindCopyToReg:
		return "CopyToReg"
	case KindCopyFromReg:
		return "CopyFromReg"
	case KindLoad:
		return "Load"
	case KindStore:
		return "Store"
	case KindAdd:
		return "Add"
	case KindSub:
		return "Sub"
	case KindAnd:
		return "And"
	case KindCall:
		return "Call"
	case KindBrInd:
		return "BrInd"
	case KindInlineAsm:
		return "InlineAsm"
	case KindTargetConstant:
		return "TargetConstant"
	case KindTargetFrameIndex:
		return "TargetFrameIndex"
	case KindTargetGlobal:
		return "TargetGlobal"
	case KindTargetExternalSymbol:
		return "TargetExternalSymbol"
	case KindMachine:
		return "Machine"
	default:
		return "Invalid"
	}
}

// AddrSpace distinguishes general data memory from the segmented
// read-only program memory.
type AddrSpace uint8

const (
	SpaceData AddrSpace = iota
	SpaceProgram
)

// IndexMode is the auto-indexing mode of a load or store.
type IndexMode uint8

const (
	ModeNone IndexMode = iota
	ModePostInc
	ModePreDec
)

// ExtKind is the extension performed by a load.
type ExtKind uint8

const (
	ExtNone ExtKind = iota
	ExtZero
	ExtSign
)

// MemInfo annotates a memory-accessing node and is carried over to the
// selected instruction for later passes.
type MemInfo struct {
	Width  ValueType // TypeI8 or TypeI16
	Space  AddrSpace
	Mode   IndexMode
	Offset int64 // auto-index amount (signed); 0 unless Mode != ModeNone
	Ext    ExtKind
}

// NodeID is a stable handle into the graph arena. The zero NodeID is
// reserved and never names a live node.
type NodeID int32

// ValueRef names one result value of one node. The zero ValueRef is
// invalid, matching the reserved zero NodeID.
type ValueRef struct {
	Node  NodeID
	Index int
}

// Valid reports whether the reference names a node at all.
func (v ValueRef) Valid() bool {
	return v.Node != 0
}

// Node is a single graph vertex. Chain and Glue are first-class typed
// edges rather than operand-position conventions, so ordering invariants
// can be checked without opcode-specific knowledge.
type Node struct {
	Kind  NodeKind
	Op    Opcode      // machine opcode, KindMachine only
	Types []ValueType // result slots
	Ops   []ValueRef  // data operands
	Chain ValueRef    // side-effect predecessor (a TypeChain value), or invalid
	Glue  ValueRef    // glue predecessor (a TypeGlue value), or invalid

	// Per-kind payloads.
	Imm int64    // KindConstant / KindTargetConstant
	FI  int      // frame index kinds
	Sym string   // symbol kinds; the asm string for KindInlineAsm
	Reg Reg      // KindRegister
	Mem *MemInfo // loads and stores, copied onto selected nodes
}

// NumValues returns the number of result slots.
func (n *Node) NumValues() int {
	return len(n.Types)
}

// Graph is an arena of nodes plus the function-wide virtual register
// namespace. It is exclusively owned by one selector for the duration of
// a pass; there is no concurrent mutation.
type Graph struct {
	nodes     []Node
	dead      []bool
	nextVReg  Reg
	vregClass map[Reg]RegClass

	// Entry is the function entry side-effect token, the root of every
	// chain in the function.
	Entry ValueRef
}

// NewGraph returns an empty graph holding only the entry token. Index 0
// of the arena is a reserved dummy so the zero ValueRef stays invalid.
func NewGraph() *Graph {
	g := &Graph{
		nodes:     make([]Node, 1),
		dead:      make([]bool, 1),
		nextVReg:  firstVirtualReg,
		vregClass: make(map[Reg]RegClass),
	}
	entry := g.add(Node{Kind: KindEntryToken, Types: []ValueType{TypeChain}})
	g.Entry = ValueRef{entry, 0}
	return g
}

// Node returns the node behind a handle.
func (g *Graph) Node(id NodeID) *Node {
	return &g.nodes[id]
}

// Dead reports whether a node has been replaced and unlinked.
func (g *Graph) Dead(id NodeID) bool {
	return g.dead[id]
}

// NumNodes returns the number of allocated handles, including dead ones
// and the reserved handle 0.
func (g *Graph) NumNodes() int {
	return len(g.nodes)
}

// ValueType returns the type of the referenced result slot.
func (g *Graph) ValueType(v ValueRef) ValueType {
	if !v.Valid() {
		return TypeNone
	}
	return g.nodes[v.Node].Types[v.Index]
}

func (g *Graph) add(n Node) NodeID {
	g.nodes = append(g.nodes, n)
	g.dead = append(g.dead, false)
	return NodeID(len(g.nodes) - 1)
}

// NewNode allocates a node with the given kind, result types and data
// operands. Chain and glue edges are attached by the caller.
func (g *Graph) NewNode(kind NodeKind, types []ValueType, ops ...ValueRef) NodeID {
	return g.add(Node{Kind: kind, Types: types, Ops: ops})
}

// NewMachineNode allocates a selected machine node.
func (g *Graph) NewMachineNode(op Opcode, types []ValueType, ops ...ValueRef) NodeID {
	return g.add(Node{Kind: KindMachine, Op: op, Types: types, Ops: ops})
}

// Constant builds an i8/i16 constant value.
func (g *Graph) Constant(v int64, t ValueType) ValueRef {
	id := g.add(Node{Kind: KindConstant, Types: []ValueType{t}, Imm: v})
	return ValueRef{id, 0}
}

// TargetConstant builds a selected-form constant operand.
func (g *Graph) TargetConstant(v int64, t ValueType) ValueRef {
	id := g.add(Node{Kind: KindTargetConstant, Types: []ValueType{t}, Imm: v})
	return ValueRef{id, 0}
}

// FrameIndex builds an abstract stack-slot address.
func (g *Graph) FrameIndex(fi int) ValueRef {
	id := g.add(Node{Kind: KindFrameIndex, Types: []ValueType{TypePtr}, FI: fi})
	return ValueRef{id, 0}
}

// TargetFrameIndex builds the selected form of a stack-slot address.
func (g *Graph) TargetFrameIndex(fi int) ValueRef {
	id := g.add(Node{Kind: KindTargetFrameIndex, Types: []ValueType{TypePtr}, FI: fi})
	return ValueRef{id, 0}
}

// GlobalAddress builds the address of a named global plus an offset.
func (g *Graph) GlobalAddress(sym string, offset int64) ValueRef {
	id := g.add(Node{Kind: KindGlobalAddress, Types: []ValueType{TypePtr}, Sym: sym, Imm: offset})
	return ValueRef{id, 0}
}

// TargetGlobalAddress builds the selected form of a global address.
func (g *Graph) TargetGlobalAddress(sym string, offset int64) ValueRef {
	id := g.add(Node{Kind: KindTargetGlobal, Types: []ValueType{TypePtr}, Sym: sym, Imm: offset})
	return ValueRef{id, 0}
}

// ExternalSymbol builds a reference to a symbol outside the module.
func (g *Graph) ExternalSymbol(name string) ValueRef {
	id := g.add(Node{Kind: KindExternalSymbol, Types: []ValueType{TypePtr}, Sym: name})
	return ValueRef{id, 0}
}

// TargetExternalSymbol builds the selected form of an external symbol.
func (g *Graph) TargetExternalSymbol(name string) ValueRef {
	id := g.add(Node{Kind: KindTargetExternalSymbol, Types: []ValueType{TypePtr}, Sym: name})
	return ValueRef{id, 0}
}

// Register builds a reference to a physical or virtual register.
func (g *Graph) Register(r Reg, t ValueType) ValueRef {
	id := g.add(Node{Kind: KindRegister, Types: []ValueType{t}, Reg: r})
	return ValueRef{id, 0}
}

// CopyToReg writes val into reg. Results are (chain, glue).
func (g *Graph) CopyToReg(chain ValueRef, r Reg, val ValueRef) NodeID {
	id := g.add(Node{
		Kind:  KindCopyToReg,
		Types: []ValueType{TypeChain, TypeGlue},
		Ops:   []ValueRef{g.Register(r, g.ValueType(val)), val},
		Chain: chain,
	})
	return id
}

// CopyFromReg reads reg as a value of type t. Results are
// (value, chain, glue).
func (g *Graph) CopyFromReg(chain ValueRef, r Reg, t ValueType) NodeID {
	id := g.add(Node{
		Kind:  KindCopyFromReg,
		Types: []ValueType{t, TypeChain, TypeGlue},
		Ops:   []ValueRef{g.Register(r, t)},
		Chain: chain,
	})
	return id
}

// Binary builds a two-operand arithmetic node of the given kind.
func (g *Graph) Binary(kind NodeKind, t ValueType, lhs, rhs ValueRef) ValueRef {
	id := g.add(Node{Kind: kind, Types: []ValueType{t}, Ops: []ValueRef{lhs, rhs}})
	return ValueRef{id, 0}
}

// Load builds a memory load. Results are (value, chain) for a plain
// load and (value, updated pointer, chain) for an auto-indexed one.
func (g *Graph) Load(chain, addr ValueRef, mem MemInfo) NodeID {
	types := []ValueType{mem.Width, TypeChain}
	if mem.Mode != ModeNone {
		types = []ValueType{mem.Width, TypePtr, TypeChain}
	}
	m := mem
	return g.add(Node{Kind: KindLoad, Types: types, Ops: []ValueRef{addr}, Chain: chain, Mem: &m})
}

// Store builds a memory store. The result is the chain.
func (g *Graph) Store(chain, val, addr ValueRef, mem MemInfo) NodeID {
	m := mem
	return g.add(Node{Kind: KindStore, Types: []ValueType{TypeChain}, Ops: []ValueRef{val, addr}, Chain: chain, Mem: &m})
}

// Call builds a call through the given callee value. Results are
// (chain, glue).
func (g *Graph) Call(chain, callee ValueRef, args ...ValueRef) NodeID {
	ops := append([]ValueRef{callee}, args...)
	return g.add(Node{Kind: KindCall, Types: []ValueType{TypeChain, TypeGlue}, Ops: ops, Chain: chain})
}

// BrInd builds an indirect branch to the given target value. The result
// is the chain.
func (g *Graph) BrInd(chain, target ValueRef) NodeID {
	return g.add(Node{Kind: KindBrInd, Types: []ValueType{TypeChain}, Ops: []ValueRef{target}, Chain: chain})
}

// InlineAsm builds an inline-assembly node over an already flattened
// operand list of flag words and operand groups. Results are
// (chain, glue).
func (g *Graph) InlineAsm(chain ValueRef, asm string, ops ...ValueRef) NodeID {
	return g.add(Node{Kind: KindInlineAsm, Types: []ValueType{TypeChain, TypeGlue}, Ops: ops, Chain: chain, Sym: asm})
}

// NewVirtualReg allocates a fresh virtual register of the given class.
// Virtual registers are handed out monotonically and never reused within
// a function.
func (g *Graph) NewVirtualReg(class RegClass) Reg {
	r := g.nextVReg
	g.nextVReg++
	g.vregClass[r] = class
	return r
}

// RegClassOf returns the class of a virtual register, or ClassNone.
func (g *Graph) RegClassOf(r Reg) RegClass {
	if !r.IsVirtual() {
		return physRegClass(r)
	}
	return g.vregClass[r]
}

// SetRegClass refines the class of a virtual register.
func (g *Graph) SetRegClass(r Reg, class RegClass) {
	g.vregClass[r] = class
}

// ReplaceAllUses redirects every use of the old value to the new value.
// Dead nodes are skipped; the old node keeps its identity until the
// caller marks it dead.
func (g *Graph) ReplaceAllUses(old, repl ValueRef) {
	for i := 1; i < len(g.nodes); i++ {
		if g.dead[i] {
			continue
		}
		n := &g.nodes[i]
		for j := range n.Ops {
			if n.Ops[j] == old {
				n.Ops[j] = repl
			}
		}
		if n.Chain == old {
			n.Chain = repl
		}
		if n.Glue == old {
			n.Glue = repl
		}
	}
}

// ReplaceNode redirects every result of old to the same-numbered result
// of repl and marks old dead. The two nodes must agree on the indices
// that are actually in use.
func (g *Graph) ReplaceNode(old, repl NodeID) {
	if old == repl {
		return
	}
	vals := g.nodes[old].NumValues()
	if n := g.nodes[repl].NumValues(); n < vals {
		vals = n
	}
	for i := 0; i < vals; i++ {
		g.ReplaceAllUses(ValueRef{old, i}, ValueRef{repl, i})
	}
	g.MarkDead(old)
	if DebugMode {
		fmt.Fprintf(os.Stderr, "replaced node %d (%s) with %d (%s)\n",
			old, g.nodes[old].Kind, repl, g.nodes[repl].Kind)
	}
}

// MarkDead retires a replaced node.
func (g *Graph) MarkDead(id NodeID) {
	g.dead[id] = true
}

// HasUses reports whether any live node consumes one of id's results.
func (g *Graph) HasUses(id NodeID) bool {
	for i := NodeID(1); int(i) < len(g.nodes); i++ {
		if g.dead[i] || i == id {
			continue
		}
		n := &g.nodes[i]
		for _, op := range n.Ops {
			if op.Node == id {
				return true
			}
		}
		if n.Chain.Node == id || n.Glue.Node == id {
			return true
		}
	}
	return false
}

// Validate checks the ordering-edge invariants: chain edges must point
// at chain-typed values, glue edges at glue-typed values, and every
// side-effect token may have at most one chain successor.
func (g *Graph) Validate() error {
	chainUses := make(map[ValueRef]int)
	for i := 1; i < len(g.nodes); i++ {
		if g.dead[i] {
			continue
		}
		n := &g.nodes[i]
		if n.Chain.Valid() {
			if t := g.ValueType(n.Chain); t != TypeChain {
				return fmt.Errorf("node %d (%s): chain edge points at %s value", i, n.Kind, t)
			}
			if n.Chain != g.Entry {
				chainUses[n.Chain]++
			}
		}
		if n.Glue.Valid() {
			if t := g.ValueType(n.Glue); t != TypeGlue {
				return fmt.Errorf("node %d (%s): glue edge points at %s value", i, n.Kind, t)
			}
		}
	}
	for v, uses := range chainUses {
		if uses > 1 {
			return fmt.Errorf("node %d: chain value %d has %d successors, want at most 1",
				v.Node, v.Index, uses)
		}
	}
	return nil
}
