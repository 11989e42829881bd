// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: original_source/rbtree.h (dill_rbtree), a classic
// parent-pointer red-black tree keyed by an int64 value. This port keeps
// the same node shape (red flag, left/right/parent, key) and the same
// operation set (Insert, Erase, Find, First, Next) but is generic over
// the payload the scheduler's deadline tree attaches to each node.
//

// Package rbtree implements an intrusive-style red-black tree ordered by
// an int64 key, used by the scheduler as its deadline timer wheel
//.
package rbtree

// Node is one tree node. The zero value is not usable; construct nodes
// via [Tree.Insert].
type Node[V any] struct {
	red    bool
	left   *Node[V]
	right  *Node[V]
	parent *Node[V]
	key    int64
	Value  V
}

// Key returns the node's ordering key (e.g. a deadline in monotonic ms).
func (n *Node[V]) Key() int64 { return n.key }

// Tree is a red-black tree ordered by int64 key. The zero value is an
// empty, ready-to-use tree.
type Tree[V any] struct {
	root *Node[V]
}

// Empty reports whether the tree holds no nodes.
func (t *Tree[V]) Empty() bool { return t.root == nil }

// Insert adds a new node with the given key and value, returning the
// node so the caller can later call [Tree.Erase] on it in O(1) (modulo
// the fixup walk), exactly as libdill's rb-tree nodes are embedded in
// the waiter and erased directly without a second search.
func (t *Tree[V]) Insert(key int64, value V) *Node[V] {
	n := &Node[V]{key: key, Value: value, red: true}
	var parent *Node[V]
	cur := t.root
	left := false
	for cur != nil {
		parent = cur
		if key < cur.key {
			cur = cur.left
			left = true
		} else {
			cur = cur.right
			left = false
		}
	}
	n.parent = parent
	switch {
	case parent == nil:
		t.root = n
	case left:
		parent.left = n
	default:
		parent.right = n
	}
	t.insertFixup(n)
	return n
}

// First returns the node with the lowest key, or nil if the tree is
// empty — the scheduler's "earliest deadline" query.
func (t *Tree[V]) First() *Node[V] {
	n := t.root
	if n == nil {
		return nil
	}
	for n.left != nil {
		n = n.left
	}
	return n
}

// Next returns the in-order successor of n, or nil if n is the last node.
func (t *Tree[V]) Next(n *Node[V]) *Node[V] {
	if n.right != nil {
		n = n.right
		for n.left != nil {
			n = n.left
		}
		return n
	}
	p := n.parent
	for p != nil && n == p.right {
		n = p
		p = p.parent
	}
	return p
}

// Erase removes n from the tree. n must currently belong to t.
func (t *Tree[V]) Erase(n *Node[V]) {
	y := n
	yOrigRed := y.red
	var x, xParent *Node[V]

	switch {
	case n.left == nil:
		x = n.right
		xParent = n.parent
		t.transplant(n, n.right)
	case n.right == nil:
		x = n.left
		xParent = n.parent
		t.transplant(n, n.left)
	default:
		y = n.right
		for y.left != nil {
			y = y.left
		}
		yOrigRed = y.red
		x = y.right
		if y.parent == n {
			xParent = y
		} else {
			xParent = y.parent
			t.transplant(y, y.right)
			y.right = n.right
			y.right.parent = y
		}
		t.transplant(n, y)
		y.left = n.left
		y.left.parent = y
		y.red = n.red
	}
	n.left, n.right, n.parent = nil, nil, nil

	if !yOrigRed {
		t.eraseFixup(x, xParent)
	}
}

func (t *Tree[V]) transplant(u, v *Node[V]) {
	switch {
	case u.parent == nil:
		t.root = v
	case u == u.parent.left:
		u.parent.left = v
	default:
		u.parent.right = v
	}
	if v != nil {
		v.parent = u.parent
	}
}

func (t *Tree[V]) rotateLeft(x *Node[V]) {
	y := x.right
	x.right = y.left
	if y.left != nil {
		y.left.parent = x
	}
	y.parent = x.parent
	switch {
	case x.parent == nil:
		t.root = y
	case x == x.parent.left:
		x.parent.left = y
	default:
		x.parent.right = y
	}
	y.left = x
	x.parent = y
}

func (t *Tree[V]) rotateRight(x *Node[V]) {
	y := x.left
	x.left = y.right
	if y.right != nil {
		y.right.parent = x
	}
	y.parent = x.parent
	switch {
	case x.parent == nil:
		t.root = y
	case x == x.parent.right:
		x.parent.right = y
	default:
		x.parent.left = y
	}
	y.right = x
	x.parent = y
}

func (t *Tree[V]) insertFixup(z *Node[V]) {
	for z.parent != nil && z.parent.red {
		gp := z.parent.parent
		if gp == nil {
			break
		}
		if z.parent == gp.left {
			uncle := gp.right
			if isRed(uncle) {
				z.parent.red = false
				uncle.red = false
				gp.red = true
				z = gp
				continue
			}
			if z == z.parent.right {
				z = z.parent
				t.rotateLeft(z)
			}
			z.parent.red = false
			gp.red = true
			t.rotateRight(gp)
		} else {
			uncle := gp.left
			if isRed(uncle) {
				z.parent.red = false
				uncle.red = false
				gp.red = true
				z = gp
				continue
			}
			if z == z.parent.left {
				z = z.parent
				t.rotateRight(z)
			}
			z.parent.red = false
			gp.red = true
			t.rotateLeft(gp)
		}
	}
	t.root.red = false
}

func (t *Tree[V]) eraseFixup(x, parent *Node[V]) {
	for x != t.root && !isRed(x) {
		if parent == nil {
			break
		}
		if x == parent.left {
			w := parent.right
			if isRed(w) {
				w.red = false
				parent.red = true
				t.rotateLeft(parent)
				w = parent.right
			}
			if !isRed(w.left) && !isRed(w.right) {
				w.red = true
				x = parent
				parent = x.parent
				continue
			}
			if !isRed(w.right) {
				if w.left != nil {
					w.left.red = false
				}
				w.red = true
				t.rotateRight(w)
				w = parent.right
			}
			w.red = parent.red
			parent.red = false
			if w.right != nil {
				w.right.red = false
			}
			t.rotateLeft(parent)
			x = t.root
			break
		}
		w := parent.left
		if isRed(w) {
			w.red = false
			parent.red = true
			t.rotateRight(parent)
			w = parent.left
		}
		if !isRed(w.left) && !isRed(w.right) {
			w.red = true
			x = parent
			parent = x.parent
			continue
		}
		if !isRed(w.left) {
			if w.right != nil {
				w.right.red = false
			}
			w.red = true
			t.rotateLeft(w)
			w = parent.left
		}
		w.red = parent.red
		parent.red = false
		if w.left != nil {
			w.left.red = false
		}
		t.rotateRight(parent)
		x = t.root
		break
	}
	if x != nil {
		x.red = false
	}
}

func isRed[V any](n *Node[V]) bool {
	return n != nil && n.red
}
