package rbac

import "testing"

func TestBuildTreeShallow(t *testing.T) {
	perms := []*Permission{
		{ID: 1, ParentID: 0, Name: "root"},
		{ID: 2, ParentID: 1, Name: "child"},
		{ID: 3, ParentID: 2, Name: "grandchild"},
	}
	tree := BuildTree(perms)
	if len(tree) != 1 {
		t.Fatalf("expected 1 root, got %d", len(tree))
	}
	root := tree[0]
	if root.ID != 1 {
		t.Fatalf("unexpected root id %d", root.ID)
	}
	if len(root.Children) != 1 {
		t.Fatalf("expected 1 child, got %d", len(root.Children))
	}
	child := root.Children[0]
	if child.ID != 2 {
		t.Fatalf("unexpected child id %d", child.ID)
	}
	// The grandchild stays detached: only two levels render.
	if len(child.Children) != 0 {
		t.Fatalf("grandchild must not be attached, got %d children", len(child.Children))
	}
}

func TestBuildTreeOrdering(t *testing.T) {
	perms := []*Permission{
		{ID: 10, ParentID: 0, Order: 2},
		{ID: 11, ParentID: 0, Order: 1},
		{ID: 12, ParentID: 11, Order: 5},
		{ID: 13, ParentID: 11, Order: 1},
	}
	tree := BuildTree(perms)
	if len(tree) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(tree))
	}
	if tree[0].ID != 11 || tree[1].ID != 10 {
		t.Fatalf("roots not ordered by sort order: %d, %d", tree[0].ID, tree[1].ID)
	}
	if tree[0].Children[0].ID != 13 {
		t.Fatalf("children not ordered by sort order: %d", tree[0].Children[0].ID)
	}
}

func TestBuildTreeEmpty(t *testing.T) {
	if tree := BuildTree(nil); len(tree) != 0 {
		t.Fatalf("expected empty tree, got %d roots", len(tree))
	}
}
