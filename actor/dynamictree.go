package actor

import (
	"github.com/go-gl/mathgl/mgl64"
)

const nullNode = -1

// treeNode is either a leaf holding one proxy or an internal node with exactly two children.
// Free nodes reuse parent as the next pointer of the free-list.
type treeNode struct {
	box    AABB
	parent int
	child1 int
	child2 int
	height int // leaf = 0, free = -1

	UserData int
}

func (n *treeNode) isLeaf() bool {
	return n.child1 == nullNode
}

// DynamicTree is a bounding volume hierarchy of fat boxes. Proxies only move in the tree when
// their tight box leaves the fat one, so slowly moving content costs almost nothing to keep
// up to date.
type DynamicTree struct {
	nodes    []treeNode
	root     int
	freeList int

	// Margin added around every inserted box, and how far ahead the box is predicted along
	// the displacement given to MoveProxy.
	Margin     float64
	Multiplier float64

	stack []int
}

// NewDynamicTree creates an empty tree with the given fat box margin.
func NewDynamicTree(margin float64) *DynamicTree {
	t := &DynamicTree{
		root:       nullNode,
		freeList:   nullNode,
		Margin:     margin,
		Multiplier: 2.0,
		stack:      make([]int, 0, 64),
	}
	t.grow(16)
	return t
}

func (t *DynamicTree) grow(capacity int) {
	start := len(t.nodes)
	for i := start; i < capacity; i++ {
		next := i + 1
		if next == capacity {
			next = t.freeList
		}
		t.nodes = append(t.nodes, treeNode{parent: next, child1: nullNode, child2: nullNode, height: -1})
	}
	t.freeList = start
}

func (t *DynamicTree) allocateNode() int {
	if t.freeList == nullNode {
		t.grow(max(len(t.nodes)*2, 16))
	}

	id := t.freeList
	n := &t.nodes[id]
	t.freeList = n.parent
	n.parent = nullNode
	n.child1 = nullNode
	n.child2 = nullNode
	n.height = 0
	n.UserData = 0
	return id
}

func (t *DynamicTree) freeNode(id int) {
	t.nodes[id].parent = t.freeList
	t.nodes[id].height = -1
	t.freeList = id
}

// CreateProxy inserts box and returns its proxy id. userData is handed back by the queries.
func (t *DynamicTree) CreateProxy(box AABB, userData int) int {
	id := t.allocateNode()
	t.nodes[id].box = box.Expand(t.Margin)
	t.nodes[id].UserData = userData
	t.insertLeaf(id)
	return id
}

func (t *DynamicTree) DestroyProxy(id int) {
	t.removeLeaf(id)
	t.freeNode(id)
}

// MoveProxy refits the proxy when box escaped its fat box and reports whether it did.
func (t *DynamicTree) MoveProxy(id int, box AABB, displacement mgl64.Vec3) bool {
	if t.nodes[id].box.Contains(box) {
		return false
	}

	t.removeLeaf(id)

	fat := box.Expand(t.Margin)
	d := displacement.Mul(t.Multiplier)
	for i := 0; i < 3; i++ {
		if d[i] < 0 {
			fat.Min[i] += d[i]
		} else {
			fat.Max[i] += d[i]
		}
	}
	t.nodes[id].box = fat

	t.insertLeaf(id)
	return true
}

func (t *DynamicTree) UserData(id int) int {
	return t.nodes[id].UserData
}

func (t *DynamicTree) FatAABB(id int) AABB {
	return t.nodes[id].box
}

// Root returns the box enclosing the whole tree.
func (t *DynamicTree) Root() (AABB, bool) {
	if t.root == nullNode {
		return AABB{}, false
	}
	return t.nodes[t.root].box, true
}

func (t *DynamicTree) Height() int {
	if t.root == nullNode {
		return 0
	}
	return t.nodes[t.root].height
}

// QueryBox appends the user data of every proxy overlapping box to list.
func (t *DynamicTree) QueryBox(list []int, box AABB) []int {
	if t.root == nullNode {
		return list
	}

	stack := append(t.stack[:0], t.root)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := &t.nodes[id]
		if !n.box.Overlaps(box) {
			continue
		}
		if n.isLeaf() {
			list = append(list, n.UserData)
		} else {
			stack = append(stack, n.child1, n.child2)
		}
	}
	t.stack = stack
	return list
}

// QueryRay appends the user data of every proxy whose box is crossed by the ray.
func (t *DynamicTree) QueryRay(list []int, origin, direction mgl64.Vec3) []int {
	if t.root == nullNode {
		return list
	}

	stack := append(t.stack[:0], t.root)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := &t.nodes[id]
		if !n.box.RayIntersect(origin, direction) {
			continue
		}
		if n.isLeaf() {
			list = append(list, n.UserData)
		} else {
			stack = append(stack, n.child1, n.child2)
		}
	}
	t.stack = stack
	return list
}

// QueryTree appends to list every overlapping (this, other) leaf pair as two consecutive
// entries: user data from t, then user data from other.
func (t *DynamicTree) QueryTree(list []int, other *DynamicTree) []int {
	if t.root == nullNode || other.root == nullNode {
		return list
	}

	type nodePair struct{ a, b int }
	pairs := []nodePair{{t.root, other.root}}
	for len(pairs) > 0 {
		p := pairs[len(pairs)-1]
		pairs = pairs[:len(pairs)-1]

		na := &t.nodes[p.a]
		nb := &other.nodes[p.b]
		if !na.box.Overlaps(nb.box) {
			continue
		}

		switch {
		case na.isLeaf() && nb.isLeaf():
			list = append(list, na.UserData, nb.UserData)
		case nb.isLeaf() || (!na.isLeaf() && na.box.Perimeter() > nb.box.Perimeter()):
			pairs = append(pairs, nodePair{na.child1, p.b}, nodePair{na.child2, p.b})
		default:
			pairs = append(pairs, nodePair{p.a, nb.child1}, nodePair{p.a, nb.child2})
		}
	}
	return list
}

func (t *DynamicTree) insertLeaf(leaf int) {
	if t.root == nullNode {
		t.root = leaf
		t.nodes[leaf].parent = nullNode
		return
	}

	// ========== FIND BEST SIBLING ==========
	leafBox := t.nodes[leaf].box
	index := t.root
	for !t.nodes[index].isLeaf() {
		n := &t.nodes[index]
		area := n.box.Perimeter()
		combinedArea := n.box.Merge(leafBox).Perimeter()

		cost := 2.0 * combinedArea
		inheritanceCost := 2.0 * (combinedArea - area)

		cost1 := t.descendCost(n.child1, leafBox) + inheritanceCost
		cost2 := t.descendCost(n.child2, leafBox) + inheritanceCost

		if cost < cost1 && cost < cost2 {
			break
		}
		if cost1 < cost2 {
			index = n.child1
		} else {
			index = n.child2
		}
	}
	sibling := index

	// ========== NEW PARENT ==========
	oldParent := t.nodes[sibling].parent
	newParent := t.allocateNode()
	t.nodes[newParent].parent = oldParent
	t.nodes[newParent].box = leafBox.Merge(t.nodes[sibling].box)
	t.nodes[newParent].height = t.nodes[sibling].height + 1
	t.nodes[newParent].child1 = sibling
	t.nodes[newParent].child2 = leaf
	t.nodes[sibling].parent = newParent
	t.nodes[leaf].parent = newParent

	if oldParent != nullNode {
		if t.nodes[oldParent].child1 == sibling {
			t.nodes[oldParent].child1 = newParent
		} else {
			t.nodes[oldParent].child2 = newParent
		}
	} else {
		t.root = newParent
	}

	t.refit(t.nodes[leaf].parent)
}

func (t *DynamicTree) descendCost(child int, leafBox AABB) float64 {
	c := &t.nodes[child]
	merged := leafBox.Merge(c.box).Perimeter()
	if c.isLeaf() {
		return merged
	}
	return merged - c.box.Perimeter()
}

func (t *DynamicTree) removeLeaf(leaf int) {
	if leaf == t.root {
		t.root = nullNode
		return
	}

	parent := t.nodes[leaf].parent
	grandParent := t.nodes[parent].parent
	sibling := t.nodes[parent].child1
	if sibling == leaf {
		sibling = t.nodes[parent].child2
	}

	if grandParent == nullNode {
		t.root = sibling
		t.nodes[sibling].parent = nullNode
		t.freeNode(parent)
		return
	}

	if t.nodes[grandParent].child1 == parent {
		t.nodes[grandParent].child1 = sibling
	} else {
		t.nodes[grandParent].child2 = sibling
	}
	t.nodes[sibling].parent = grandParent
	t.freeNode(parent)

	t.refit(grandParent)
}

// refit walks to the root, rebalancing and fixing boxes and heights.
func (t *DynamicTree) refit(index int) {
	for index != nullNode {
		index = t.balance(index)

		n := &t.nodes[index]
		c1 := &t.nodes[n.child1]
		c2 := &t.nodes[n.child2]
		n.height = 1 + max(c1.height, c2.height)
		n.box = c1.box.Merge(c2.box)

		index = n.parent
	}
}

// balance performs a left or right rotation if node A is imbalanced and returns the new
// root of the subtree.
func (t *DynamicTree) balance(iA int) int {
	A := &t.nodes[iA]
	if A.isLeaf() || A.height < 2 {
		return iA
	}

	iB, iC := A.child1, A.child2
	B := &t.nodes[iB]
	C := &t.nodes[iC]

	diff := C.height - B.height

	if diff > 1 {
		// rotate C up
		iF, iG := C.child1, C.child2
		F := &t.nodes[iF]
		G := &t.nodes[iG]

		C.child1 = iA
		C.parent = A.parent
		A.parent = iC
		t.replaceChild(C.parent, iA, iC)

		if F.height > G.height {
			C.child2 = iF
			A.child2 = iG
			G.parent = iA
			A.box = B.box.Merge(G.box)
			C.box = A.box.Merge(F.box)
			A.height = 1 + max(B.height, G.height)
			C.height = 1 + max(A.height, F.height)
		} else {
			C.child2 = iG
			A.child2 = iF
			F.parent = iA
			A.box = B.box.Merge(F.box)
			C.box = A.box.Merge(G.box)
			A.height = 1 + max(B.height, F.height)
			C.height = 1 + max(A.height, G.height)
		}
		return iC
	}

	if diff < -1 {
		// rotate B up
		iD, iE := B.child1, B.child2
		D := &t.nodes[iD]
		E := &t.nodes[iE]

		B.child1 = iA
		B.parent = A.parent
		A.parent = iB
		t.replaceChild(B.parent, iA, iB)

		if D.height > E.height {
			B.child2 = iD
			A.child1 = iE
			E.parent = iA
			A.box = C.box.Merge(E.box)
			B.box = A.box.Merge(D.box)
			A.height = 1 + max(C.height, E.height)
			B.height = 1 + max(A.height, D.height)
		} else {
			B.child2 = iE
			A.child1 = iD
			D.parent = iA
			A.box = C.box.Merge(D.box)
			B.box = A.box.Merge(E.box)
			A.height = 1 + max(C.height, D.height)
			B.height = 1 + max(A.height, E.height)
		}
		return iB
	}

	return iA
}

func (t *DynamicTree) replaceChild(parent, old, child int) {
	if parent == nullNode {
		t.root = child
		return
	}
	if t.nodes[parent].child1 == old {
		t.nodes[parent].child1 = child
	} else {
		t.nodes[parent].child2 = child
	}
}
