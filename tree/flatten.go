package tree

import (
	"sort"
	"strconv"
	"strings"

	"github.com/hazyhaar/reactwatch/wall"
)

// FlatEntry is one node in a depth-first flattening of the tree.
type FlatEntry struct {
	ID          uint32           `json:"id"`
	Label       string           `json:"label,omitempty"`
	DisplayName string           `json:"displayName"`
	Kind        wall.ElementKind `json:"kind"`
	Key         *string          `json:"key"`
	ParentID    uint32           `json:"parentId"`
	ChildIDs    []uint32         `json:"childIds"`
	Depth       int              `json:"depth"`
}

// Flatten walks every root depth-first pre-order and assigns dense labels
// "@c1", "@c2", … to the emitted nodes. The label map is rebuilt from
// scratch on each call: labels from an earlier Flatten are invalidated.
//
// maxDepth < 0 means unlimited. Nodes deeper than maxDepth are not emitted;
// their ancestors are.
func (t *Tree) Flatten(maxDepth int) []FlatEntry {
	t.labelToID = make(map[string]uint32)
	t.idToLabel = make(map[uint32]string)

	var out []FlatEntry
	for _, rootID := range t.roots {
		t.flattenWalk(rootID, 0, maxDepth, &out)
	}
	return out
}

func (t *Tree) flattenWalk(id uint32, depth, maxDepth int, out *[]FlatEntry) {
	n, ok := t.nodes[id]
	if !ok {
		return
	}
	if maxDepth >= 0 && depth > maxDepth {
		return
	}

	label := "@c" + strconv.Itoa(len(*out)+1)
	t.labelToID[label] = id
	t.idToLabel[id] = label

	*out = append(*out, FlatEntry{
		ID:          n.ID,
		Label:       label,
		DisplayName: n.DisplayName,
		Kind:        n.Kind,
		Key:         n.Key,
		ParentID:    n.ParentID,
		ChildIDs:    append([]uint32(nil), n.ChildIDs...),
		Depth:       depth,
	})

	for _, child := range n.ChildIDs {
		t.flattenWalk(child, depth+1, maxDepth, out)
	}
}

// FindByName returns entries whose display name matches. Exact matches go
// through the lowercase name index; fuzzy matching iterates index keys and
// accepts substrings. Both are case-insensitive.
func (t *Tree) FindByName(name string, exact bool) []FlatEntry {
	needle := strings.ToLower(name)

	var ids []uint32
	if exact {
		for id := range t.nameIndex[needle] {
			ids = append(ids, id)
		}
	} else {
		for key, set := range t.nameIndex {
			if strings.Contains(key, needle) {
				for id := range set {
					ids = append(ids, id)
				}
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]FlatEntry, 0, len(ids))
	for _, id := range ids {
		n := t.nodes[id]
		label := t.idToLabel[id]
		out = append(out, FlatEntry{
			ID:          n.ID,
			Label:       label,
			DisplayName: n.DisplayName,
			Kind:        n.Kind,
			Key:         n.Key,
			ParentID:    n.ParentID,
			ChildIDs:    append([]uint32(nil), n.ChildIDs...),
		})
	}
	return out
}
