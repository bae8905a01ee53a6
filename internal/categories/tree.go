package categories

import (
	"sort"
	"strings"

	"github.com/praktis/pricecompare/pkg/backend"
)

// Node is one category with its children linked in.
type Node struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	ParentID *int    `json:"parent_id,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

// Tree is the linked category hierarchy built from the flat group list.
type Tree struct {
	Roots []*Node       `json:"roots"`
	ByID  map[int]*Node `json:"-"`
}

// BuildTree links a flat parent/child list. A node becomes a root when its
// parent is missing or would close a cycle; roots carry a nil ParentID.
// Siblings are ordered by name, then id. Duplicate ids keep the first occurrence.
func BuildTree(groups []backend.Group) *Tree {
	t := &Tree{ByID: make(map[int]*Node, len(groups))}
	order := make([]*Node, 0, len(groups))
	for _, g := range groups {
		if _, dup := t.ByID[g.ID]; dup {
			continue
		}
		n := &Node{ID: g.ID, Name: strings.TrimSpace(g.Name), ParentID: g.ParentID}
		t.ByID[g.ID] = n
		order = append(order, n)
	}

	parentOf := make(map[int]int, len(order))
	for _, n := range order {
		if n.ParentID == nil || *n.ParentID == n.ID {
			continue
		}
		if _, ok := t.ByID[*n.ParentID]; !ok {
			continue
		}
		if reaches(parentOf, *n.ParentID, n.ID) {
			continue
		}
		parentOf[n.ID] = *n.ParentID
	}

	for _, n := range order {
		if pid, ok := parentOf[n.ID]; ok {
			parent := t.ByID[pid]
			parent.Children = append(parent.Children, n)
			continue
		}
		n.ParentID = nil
		t.Roots = append(t.Roots, n)
	}

	sortNodes(t.Roots)
	for _, n := range order {
		sortNodes(n.Children)
	}
	return t
}

// reaches reports whether walking up from id through parentOf arrives at target.
func reaches(parentOf map[int]int, id, target int) bool {
	seen := map[int]struct{}{}
	for {
		if id == target {
			return true
		}
		if _, ok := seen[id]; ok {
			return false
		}
		seen[id] = struct{}{}
		next, ok := parentOf[id]
		if !ok {
			return false
		}
		id = next
	}
}

func sortNodes(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := strings.ToLower(nodes[i].Name), strings.ToLower(nodes[j].Name)
		if a != b {
			return a < b
		}
		return nodes[i].ID < nodes[j].ID
	})
}

// Descendants returns id together with every id below it. An id that is not
// in the tree yields just {id}, so filtering by it still matches products
// that carry it directly.
func (t *Tree) Descendants(id int) map[int]struct{} {
	out := map[int]struct{}{id: {}}
	if t == nil {
		return out
	}
	root, ok := t.ByID[id]
	if !ok {
		return out
	}
	stack := []*Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range n.Children {
			if _, seen := out[child.ID]; seen {
				continue
			}
			out[child.ID] = struct{}{}
			stack = append(stack, child)
		}
	}
	return out
}

// Path returns the names from the root down to id, or nil when id is unknown.
func (t *Tree) Path(id int) []string {
	if t == nil {
		return nil
	}
	n, ok := t.ByID[id]
	if !ok {
		return nil
	}
	var names []string
	for n != nil {
		names = append([]string{n.Name}, names...)
		if n.ParentID == nil {
			break
		}
		n = t.ByID[*n.ParentID]
	}
	return names
}
