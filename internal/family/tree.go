package family

import "github.com/dukerupert/fampulse/internal/model"

// Tree is the family graph: members are nodes keyed by user id, father and
// mother are directed edges to a parent, spouse is an undirected edge kept
// on both profiles.
type Tree struct {
	order   []string
	members map[string]model.FamilyMember
}

// Node is one rendered couple and their descendants.
type Node struct {
	Member   model.FamilyMember
	Spouse   *model.FamilyMember
	Children []Node
}

func NewTree(members []model.FamilyMember) *Tree {
	t := &Tree{members: make(map[string]model.FamilyMember, len(members))}
	for _, m := range members {
		if _, dup := t.members[m.UserID]; !dup {
			t.order = append(t.order, m.UserID)
		}
		t.members[m.UserID] = m
	}
	return t
}

func (t *Tree) Member(userID string) (model.FamilyMember, bool) {
	m, ok := t.members[userID]
	return m, ok
}

func (t *Tree) Len() int { return len(t.order) }

// Spouse returns the member userID is married to, if that person is in
// the family.
func (t *Tree) Spouse(userID string) (model.FamilyMember, bool) {
	m, ok := t.members[userID]
	if !ok || m.Profile.SpouseID == "" {
		return model.FamilyMember{}, false
	}
	return t.Member(m.Profile.SpouseID)
}

// Parents returns the user ids of userID's recorded parents.
func (t *Tree) Parents(userID string) []string {
	m, ok := t.members[userID]
	if !ok {
		return nil
	}
	var ids []string
	if m.FatherID != "" {
		ids = append(ids, m.FatherID)
	}
	if m.MotherID != "" {
		ids = append(ids, m.MotherID)
	}
	return ids
}

// Children returns the members listing userID as father or mother.
func (t *Tree) Children(userID string) []model.FamilyMember {
	var out []model.FamilyMember
	for _, id := range t.order {
		m := t.members[id]
		if m.FatherID == userID || m.MotherID == userID {
			out = append(out, m)
		}
	}
	return out
}

func hasParents(m model.FamilyMember) bool { return m.FatherID != "" || m.MotherID != "" }

// Roots returns the members the tree is drawn from: no parents of their own
// and not married to someone who has parents.
func (t *Tree) Roots() []model.FamilyMember {
	var roots []model.FamilyMember
	for _, id := range t.order {
		m := t.members[id]
		if hasParents(m) {
			continue
		}
		marriedIn := false
		for _, other := range t.members {
			if other.Profile.SpouseID == m.UserID && hasParents(other) {
				marriedIn = true
				break
			}
		}
		if !marriedIn {
			roots = append(roots, m)
		}
	}
	return roots
}

// Generations lays the tree out from its roots. Each member appears once;
// a couple shares one node and the children of either spouse.
func (t *Tree) Generations() []Node {
	seen := make(map[string]bool)
	return t.layout(t.Roots(), seen)
}

func (t *Tree) layout(members []model.FamilyMember, seen map[string]bool) []Node {
	var nodes []Node
	for _, m := range members {
		if seen[m.UserID] {
			continue
		}
		seen[m.UserID] = true
		n := Node{Member: m}

		children := t.Children(m.UserID)
		if spouse, ok := t.Spouse(m.UserID); ok && !seen[spouse.UserID] {
			seen[spouse.UserID] = true
			n.Spouse = &spouse
			for _, c := range t.Children(spouse.UserID) {
				if c.FatherID != m.UserID && c.MotherID != m.UserID {
					children = append(children, c)
				}
			}
		}
		n.Children = t.layout(children, seen)
		nodes = append(nodes, n)
	}
	return nodes
}

// WouldCycle reports whether making parentID a parent of childID would make
// someone their own ancestor.
func (t *Tree) WouldCycle(childID, parentID string) bool {
	if childID == parentID {
		return true
	}
	// parentID must not already descend from childID.
	stack := []string{parentID}
	visited := make(map[string]bool)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true
		for _, p := range t.Parents(id) {
			if p == childID {
				return true
			}
			stack = append(stack, p)
		}
	}
	return false
}
