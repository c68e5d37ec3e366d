package rbac

import "sort"

// Node is a permission with its direct children attached.
type Node struct {
	*Permission
	Children []*Node `json:"children"`
}

// BuildTree renders a flat permission set as a two-level tree: roots are the
// entries with ParentID 0, children are entries whose ParentID matches a
// root's id. Deeper descendants are not attached even though the data model
// allows them.
func BuildTree(perms []*Permission) []*Node {
	var roots []*Node
	for _, p := range perms {
		if p.ParentID == 0 {
			roots = append(roots, &Node{Permission: p, Children: []*Node{}})
		}
	}
	sortNodes(roots)
	for _, root := range roots {
		for _, p := range perms {
			if p.ParentID == root.ID {
				root.Children = append(root.Children, &Node{Permission: p, Children: []*Node{}})
			}
		}
		sortNodes(root.Children)
	}
	return roots
}

func sortNodes(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Order != nodes[j].Order {
			return nodes[i].Order < nodes[j].Order
		}
		return nodes[i].ID < nodes[j].ID
	})
}
