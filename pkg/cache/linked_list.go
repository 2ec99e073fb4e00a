package cache

// linkedListNode is a node of the recency list. Nodes are owned by exactly one list.
type linkedListNode[V any] struct {
	next  *linkedListNode[V]
	prev  *linkedListNode[V]
	Value V
}

// Next returns the next (more recently used) node in the list.
func (n *linkedListNode[V]) Next() *linkedListNode[V] {
	return n.next
}

// Prev returns the previous (less recently used) node in the list.
func (n *linkedListNode[V]) Prev() *linkedListNode[V] {
	return n.prev
}

// linkedList is a doubly linked list ordered from least recently used (front) to most recently used (back).
type linkedList[V any] struct {
	head *linkedListNode[V]
	tail *linkedListNode[V]
	size int
}

// Len returns the number of elements in the list.
func (l *linkedList[V]) Len() int {
	return l.size
}

// Front returns the least recently used node or nil if the list is empty.
func (l *linkedList[V]) Front() *linkedListNode[V] {
	return l.head
}

// Back returns the most recently used node or nil if the list is empty.
func (l *linkedList[V]) Back() *linkedListNode[V] {
	return l.tail
}

// unlink detaches `n` from its neighbours without touching the size.
func (l *linkedList[V]) unlink(n *linkedListNode[V]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else { // Node is the head.
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else { // Node is the tail.
		l.tail = n.prev
	}
	n.next = nil
	n.prev = nil
}

// linkBack attaches a detached node `n` after the current tail.
func (l *linkedList[V]) linkBack(n *linkedListNode[V]) {
	n.prev = l.tail
	if l.tail != nil {
		l.tail.next = n
	} else { // List was empty.
		l.head = n
	}
	l.tail = n
}

// Remove removes a node from the list.
func (l *linkedList[V]) Remove(n *linkedListNode[V]) {
	l.unlink(n)
	l.size--
}

// PushBack appends a new value as the most recently used node.
func (l *linkedList[V]) PushBack(v V) *linkedListNode[V] {
	n := &linkedListNode[V]{Value: v}
	l.linkBack(n)
	l.size++
	return n
}

// MoveToBack marks `n` as the most recently used node.
func (l *linkedList[V]) MoveToBack(n *linkedListNode[V]) {
	if l.tail == n {
		return
	}
	l.unlink(n)
	l.linkBack(n)
}

// Init empties the list. Nodes still referenced elsewhere keep their stale links.
func (l *linkedList[V]) Init() {
	l.head, l.tail, l.size = nil, nil, 0
}
