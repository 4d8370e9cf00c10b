// CLAUDE:SUMMARY Canonical in-memory component tree: node records, root ordering, name index, label map.
// Package tree is the canonical store for the component graph reported by
// runtime backends. Nodes are kept in an id-keyed map with child lists
// storing ids only, so removal is a recursive id walk and no reference
// cycles exist.
//
// The store is not internally synchronised: the daemon orchestrator is the
// single writer and serialises every mutation and read.
package tree

import (
	"sort"
	"strconv"
	"strings"

	"github.com/hazyhaar/reactwatch/wall"
)

// Node is one live component.
type Node struct {
	ID          uint32           `json:"id"`
	DisplayName string           `json:"displayName"`
	Kind        wall.ElementKind `json:"kind"`
	Key         *string          `json:"key"`
	ParentID    uint32           `json:"parentId"` // 0 for roots
	ChildIDs    []uint32         `json:"childIds"`
	RendererID  uint32           `json:"rendererId"`
}

// AddedSummary reports a node created by ApplyBatch. The wait registry
// matches NamedComponentPresent conditions against these.
type AddedSummary struct {
	ID          uint32
	DisplayName string
}

// Tree holds every node of every connected renderer.
type Tree struct {
	nodes map[uint32]*Node
	roots []uint32

	// nameIndex maps lower(displayName) → ids, for findByName.
	nameIndex map[string]map[uint32]struct{}

	// Label maps are rebuilt atomically by each Flatten call; labels are
	// only valid against the Flatten that produced them.
	labelToID map[string]uint32
	idToLabel map[uint32]string
}

// New creates an empty Tree.
func New() *Tree {
	return &Tree{
		nodes:     make(map[uint32]*Node),
		nameIndex: make(map[string]map[uint32]struct{}),
		labelToID: make(map[string]uint32),
		idToLabel: make(map[uint32]string),
	}
}

// ApplyBatch mutates the tree with one decoded operations batch and returns
// a summary of every node it added.
func (t *Tree) ApplyBatch(batch *wall.Batch) []AddedSummary {
	var added []AddedSummary

	for _, op := range batch.Ops {
		switch op.Kind {
		case wall.OpAddRoot:
			if t.addRoot(op.ID, batch.RendererID) {
				added = append(added, AddedSummary{ID: op.ID, DisplayName: "Root"})
			}

		case wall.OpAdd:
			if t.addNode(op, batch.RendererID) {
				added = append(added, AddedSummary{ID: op.ID, DisplayName: op.DisplayName})
			}

		case wall.OpRemove:
			for _, id := range op.IDs {
				t.removeSubtree(id)
			}

		case wall.OpReorder:
			if parent, ok := t.nodes[op.ParentID]; ok {
				parent.ChildIDs = append([]uint32(nil), op.Children...)
			}

		case wall.OpRemoveRoot:
			t.RemoveRoot(op.ID)
		}
	}

	return added
}

func (t *Tree) addRoot(id, rendererID uint32) bool {
	if _, exists := t.nodes[id]; exists {
		return false
	}
	n := &Node{
		ID:          id,
		DisplayName: "Root",
		Kind:        wall.KindOther,
		RendererID:  rendererID,
	}
	t.nodes[id] = n
	t.roots = append(t.roots, id)
	t.indexName(n)
	return true
}

func (t *Tree) addNode(op wall.Op, rendererID uint32) bool {
	if _, exists := t.nodes[op.ID]; exists {
		return false
	}
	n := &Node{
		ID:          op.ID,
		DisplayName: op.DisplayName,
		Kind:        op.Element,
		Key:         op.Key,
		ParentID:    op.ParentID,
		RendererID:  rendererID,
	}
	t.nodes[op.ID] = n
	if parent, ok := t.nodes[op.ParentID]; ok {
		parent.ChildIDs = append(parent.ChildIDs, op.ID)
	}
	t.indexName(n)
	return true
}

// removeSubtree deletes a node and all its descendants, scrubbing the name
// index and detaching the node from its parent's child list.
func (t *Tree) removeSubtree(id uint32) {
	n, ok := t.nodes[id]
	if !ok {
		return
	}

	if parent, ok := t.nodes[n.ParentID]; ok {
		parent.ChildIDs = deleteID(parent.ChildIDs, id)
	}
	t.removeCascade(id)
}

func (t *Tree) removeCascade(id uint32) {
	n, ok := t.nodes[id]
	if !ok {
		return
	}
	for _, child := range n.ChildIDs {
		t.removeCascade(child)
	}
	t.unindexName(n)
	delete(t.nodes, id)
}

// RemoveRoot deletes a root and its whole subtree. Unknown ids are ignored.
func (t *Tree) RemoveRoot(rootID uint32) {
	n, ok := t.nodes[rootID]
	if !ok {
		return
	}
	t.removeCascade(n.ID)
	t.roots = deleteID(t.roots, rootID)
}

// GetNode returns the node for id, or nil.
func (t *Tree) GetNode(id uint32) *Node {
	return t.nodes[id]
}

// AllNodeIDs returns every live node id in ascending order.
func (t *Tree) AllNodeIDs() []uint32 {
	ids := make([]uint32, 0, len(t.nodes))
	for id := range t.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Size returns the number of live nodes.
func (t *Tree) Size() int { return len(t.nodes) }

// GetCountByKind tallies live nodes per element kind.
func (t *Tree) GetCountByKind() map[wall.ElementKind]int {
	counts := make(map[wall.ElementKind]int)
	for _, n := range t.nodes {
		counts[n.Kind]++
	}
	return counts
}

// DisplayNames snapshots id → displayName for every live node. The profiler
// captures this at session start so unmounted components keep their names.
func (t *Tree) DisplayNames() map[uint32]string {
	names := make(map[uint32]string, len(t.nodes))
	for id, n := range t.nodes {
		names[id] = n.DisplayName
	}
	return names
}

func (t *Tree) indexName(n *Node) {
	key := strings.ToLower(n.DisplayName)
	set, ok := t.nameIndex[key]
	if !ok {
		set = make(map[uint32]struct{})
		t.nameIndex[key] = set
	}
	set[n.ID] = struct{}{}
}

func (t *Tree) unindexName(n *Node) {
	key := strings.ToLower(n.DisplayName)
	if set, ok := t.nameIndex[key]; ok {
		delete(set, n.ID)
		if len(set) == 0 {
			delete(t.nameIndex, key)
		}
	}
}

// ResolveRef resolves a client reference: a numeric id, or a "@cN" label
// assigned by the most recent Flatten.
func (t *Tree) ResolveRef(ref string) (uint32, bool) {
	if strings.HasPrefix(ref, "@") {
		id, ok := t.labelToID[ref]
		return id, ok
	}
	v, err := strconv.ParseUint(ref, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

// LabelFor returns the label the most recent Flatten assigned to id.
func (t *Tree) LabelFor(id uint32) (string, bool) {
	label, ok := t.idToLabel[id]
	return label, ok
}

func deleteID(ids []uint32, id uint32) []uint32 {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
