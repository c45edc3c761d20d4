// Completion: 100% - DAG selection dispatch complete
package tinyavr

import (
	"fmt"
	"os"
)

// The per-node instruction selector. Five node kinds get hand-written
// handling (frame references, stack stores, loads, indirect calls and
// branches, inline assembly); everything else goes to the generic
// pattern table generated from the target description. A helper that
// fails to match is never an error, it just falls through.

// PatternTable is the narrow interface to the generated shape table.
// Match either returns a machine node replacing the given node, or the
// node itself to re-emit it unchanged, or reports no match.
type PatternTable interface {
	Match(g *Graph, id NodeID) (NodeID, bool)
}

// Selector rewrites one function's legalized graph into machine nodes.
// It owns the graph exclusively for the duration of the pass.
type Selector struct {
	g        *Graph
	patterns PatternTable
}

// NewSelector returns a selector over the given graph.
func NewSelector(g *Graph, patterns PatternTable) *Selector {
	return &Selector{g: g, patterns: patterns}
}

// Graph returns the graph being selected.
func (s *Selector) Graph() *Graph {
	return s.g
}

// SelectFunction selects every node, visiting users before the nodes
// that feed them so address arithmetic can still fold into its user
// when the user is reached, and keeping glue-connected nodes together.
// A node that has been replaced is never revisited.
func (s *Selector) SelectFunction() error {
	order := s.topoOrder()
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		if s.g.Dead(id) {
			continue
		}
		// A pure value node left without users has been folded into a
		// selected user; retire it rather than selecting it. Visiting
		// users first makes this propagate down folded subtrees.
		if !producesChain(s.g.Node(id)) && !s.g.HasUses(id) {
			s.g.MarkDead(id)
			continue
		}
		if err := s.selectNode(id); err != nil {
			return err
		}
	}
	return nil
}

func producesChain(n *Node) bool {
	for _, t := range n.Types {
		if t == TypeChain {
			return true
		}
	}
	return false
}

// topoOrder computes a selection order consistent with data, chain and
// glue edges. When a node's glue successor becomes ready it is emitted
// immediately after it, so glued groups are never split.
func (s *Selector) topoOrder() []NodeID {
	g := s.g
	n := g.NumNodes()
	indeg := make([]int, n)
	succ := make([][]NodeID, n)
	glueSucc := make([]NodeID, n)

	for i := NodeID(1); int(i) < n; i++ {
		node := g.Node(i)
		preds := make([]NodeID, 0, len(node.Ops)+2)
		for _, op := range node.Ops {
			preds = append(preds, op.Node)
		}
		if node.Chain.Valid() {
			preds = append(preds, node.Chain.Node)
		}
		if node.Glue.Valid() {
			preds = append(preds, node.Glue.Node)
			glueSucc[node.Glue.Node] = i
		}
		for _, p := range preds {
			succ[p] = append(succ[p], i)
			indeg[i]++
		}
	}

	var ready []NodeID
	for i := NodeID(1); int(i) < n; i++ {
		if indeg[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]NodeID, 0, n-1)
	var next NodeID
	for len(ready) > 0 || next != 0 {
		var id NodeID
		if next != 0 {
			id, next = next, 0
		} else {
			id = ready[len(ready)-1]
			ready = ready[:len(ready)-1]
		}
		order = append(order, id)
		for _, su := range succ[id] {
			indeg[su]--
			if indeg[su] == 0 {
				if glueSucc[id] == su {
					next = su
				} else {
					ready = append(ready, su)
				}
			}
		}
	}
	return order
}

func (s *Selector) selectNode(id NodeID) error {
	kind := s.g.Node(id).Kind
	if VerboseMode {
		fmt.Fprintf(os.Stderr, "selecting: %s\n", kind)
	}

	switch kind {
	case KindMachine:
		// Already a machine node; selection is idempotent.
		return nil
	case KindEntryToken, KindRegister, KindCopyToReg, KindCopyFromReg,
		KindTargetConstant, KindTargetFrameIndex, KindTargetGlobal,
		KindTargetExternalSymbol:
		// Operand and copy nodes pass through selection untouched.
		return nil
	case KindFrameIndex:
		return s.selectFrameIndex(id)
	case KindStore:
		if s.selectStackStore(id) {
			return nil
		}
	case KindLoad:
		if s.g.Node(id).Mem.Space == SpaceProgram {
			return s.selectProgMemLoad(id)
		}
		if op, ok := s.matchIndexedLoad(id); ok {
			s.selectIndexedLoad(id, op)
			return nil
		}
	case KindCall:
		if s.selectIndirectCall(id) {
			return nil
		}
	case KindBrInd:
		s.selectIndirectBranch(id)
		return nil
	case KindInlineAsm:
		if s.selectInlineAsm(id) {
			return nil
		}
	}

	if m, ok := s.patterns.Match(s.g, id); ok {
		if m != id {
			s.g.ReplaceNode(id, m)
		}
		return nil
	}
	return fmt.Errorf("cannot select node of kind %s", kind)
}

// selectFrameIndex rewrites a frame reference into the FRMIDX pseudo
// carrying the slot and a zero offset; later frame lowering resolves
// the final stack displacement. This never falls through.
func (s *Selector) selectFrameIndex(id NodeID) error {
	fi := s.g.Node(id).FI
	tfi := s.g.TargetFrameIndex(fi)
	zero := s.g.TargetConstant(0, TypeI16)
	m := s.g.NewMachineNode(OpFRMIDX, []ValueType{TypePtr}, tfi, zero)
	s.g.ReplaceNode(id, m)
	return nil
}

// selectStackStore intercepts stores whose address is stack-pointer
// relative, packaging them as STD{W}SPQRr for expansion during frame
// lowering. Plain frame or constant addresses are left to the generic
// table.
func (s *Selector) selectStackStore(id NodeID) bool {
	g := s.g
	n := g.Node(id)
	val, addrRef := n.Ops[0], n.Ops[1]
	chain, mem := n.Chain, n.Mem

	addr := g.Node(addrRef.Node)
	if addr.Kind == KindFrameIndex || addr.Kind == KindConstant {
		return false
	}
	if addr.Kind != KindAdd || len(addr.Ops) != 2 {
		return false
	}
	baseRef := addr.Ops[0]
	base := g.Node(baseRef.Node)
	if base.Kind != KindRegister || base.Reg != SP {
		return false
	}
	off := g.Node(addr.Ops[1].Node)
	if off.Kind != KindConstant {
		return false
	}

	op := OpSTDSPQRr
	if g.ValueType(val) == TypeI16 {
		op = OpSTDWSPQRr
	}
	offset := g.TargetConstant(off.Imm, TypeI16)
	m := g.NewMachineNode(op, []ValueType{TypeChain}, baseRef, offset, val)
	mn := g.Node(m)
	mn.Chain = chain
	mn.Mem = mem
	g.ReplaceNode(id, m)
	return true
}

// selectIndexedLoad builds the matched post-increment or pre-decrement
// load. Results are (value, updated pointer, chain).
func (s *Selector) selectIndexedLoad(id NodeID, op Opcode) {
	g := s.g
	n := g.Node(id)
	base, chain, mem := n.Ops[0], n.Chain, n.Mem

	m := g.NewMachineNode(op, []ValueType{mem.Width, TypePtr, TypeChain}, base)
	mn := g.Node(m)
	mn.Chain = chain
	mn.Mem = mem
	s.remapLoadResults(id, m)
}

// remapLoadResults redirects a load's result values to the replacement:
// the loaded value by index, the chain to the chain, and the pointer
// update when both sides have one.
func (s *Selector) remapLoadResults(old, repl NodeID) {
	g := s.g
	oldVals := g.Node(old).NumValues()
	newVals := g.Node(repl).NumValues()

	g.ReplaceAllUses(ValueRef{old, 0}, ValueRef{repl, 0})
	g.ReplaceAllUses(ValueRef{old, oldVals - 1}, ValueRef{repl, newVals - 1})
	if oldVals == 3 && newVals == 3 {
		g.ReplaceAllUses(ValueRef{old, 1}, ValueRef{repl, 1})
	}
	g.MarkDead(old)
	if DebugMode {
		fmt.Fprintf(os.Stderr, "replaced load %d with %d (%s)\n",
			old, repl, g.Node(repl).Op)
	}
}

// selectIndirectCall intercepts calls through a value: ICALL only
// accepts the Z register pair, so the callee is copied there first.
// Direct calls fall through to the generic table.
func (s *Selector) selectIndirectCall(id NodeID) bool {
	g := s.g
	n := g.Node(id)
	callee := n.Ops[0]
	switch g.Node(callee.Node).Kind {
	case KindGlobalAddress, KindExternalSymbol, KindTargetGlobal, KindTargetExternalSymbol:
		return false
	}
	chain := n.Chain
	args := append([]ValueRef(nil), n.Ops[1:]...)

	ctr := g.CopyToReg(chain, R31R30, callee)
	ops := append([]ValueRef{g.Register(R31R30, TypeI16)}, args...)
	m := g.NewMachineNode(OpICALL, []ValueType{TypeChain, TypeGlue}, ops...)
	mn := g.Node(m)
	mn.Chain = ValueRef{ctr, 0}
	mn.Glue = ValueRef{ctr, 1}
	g.ReplaceNode(id, m)
	return true
}

// selectIndirectBranch copies the target into the Z register pair and
// rewrites the branch to IJMP.
func (s *Selector) selectIndirectBranch(id NodeID) {
	g := s.g
	n := g.Node(id)
	target, chain := n.Ops[0], n.Chain

	ctr := g.CopyToReg(chain, R31R30, target)
	m := g.NewMachineNode(OpIJMP, []ValueType{TypeChain})
	g.Node(m).Chain = ValueRef{ctr, 0}
	g.ReplaceNode(id, m)
}
