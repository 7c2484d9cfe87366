package client

// Collection is an immutable ordered list keyed by id. Every mutator returns
// a new Collection and leaves the receiver untouched, so one snapshot can be
// handed to a renderer while the next one is being built. Values are stored
// as given; callers must not mutate pointer fields of stored values.
type Collection[K comparable, V any] struct {
	key   func(V) K
	order []K
	items map[K]V
}

// NewCollection builds a collection from items, keeping the first
// occurrence of each id.
func NewCollection[K comparable, V any](key func(V) K, items ...V) Collection[K, V] {
	c := Collection[K, V]{
		key:   key,
		order: make([]K, 0, len(items)),
		items: make(map[K]V, len(items)),
	}
	for _, item := range items {
		k := key(item)
		if _, dup := c.items[k]; dup {
			continue
		}
		c.order = append(c.order, k)
		c.items[k] = item
	}
	return c
}

// Len returns the number of items.
func (c Collection[K, V]) Len() int { return len(c.order) }

// Get looks an item up by id.
func (c Collection[K, V]) Get(k K) (V, bool) {
	v, ok := c.items[k]
	return v, ok
}

// Has reports whether id is present.
func (c Collection[K, V]) Has(k K) bool {
	_, ok := c.items[k]
	return ok
}

// Index returns the position of id or -1.
func (c Collection[K, V]) Index(k K) int {
	if !c.Has(k) {
		return -1
	}
	for i, id := range c.order {
		if id == k {
			return i
		}
	}
	return -1
}

// Keys returns the ids in order.
func (c Collection[K, V]) Keys() []K {
	out := make([]K, len(c.order))
	copy(out, c.order)
	return out
}

// Items returns the values in order.
func (c Collection[K, V]) Items() []V {
	out := make([]V, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.items[k])
	}
	return out
}

func (c Collection[K, V]) clone(extra int) Collection[K, V] {
	n := Collection[K, V]{
		key:   c.key,
		order: make([]K, len(c.order), len(c.order)+extra),
		items: make(map[K]V, len(c.items)+extra),
	}
	copy(n.order, c.order)
	for k, v := range c.items {
		n.items[k] = v
	}
	return n
}

// Replace swaps the value of a present id without reordering. It reports
// false, returning the receiver, when the id is unknown.
func (c Collection[K, V]) Replace(v V) (Collection[K, V], bool) {
	k := c.key(v)
	if !c.Has(k) {
		return c, false
	}
	n := c.clone(0)
	n.items[k] = v
	return n, true
}

// Prepend puts v first. A present id is moved, never duplicated.
func (c Collection[K, V]) Prepend(v V) Collection[K, V] {
	k := c.key(v)
	n := c.clone(1)
	order := make([]K, 0, len(c.order)+1)
	order = append(order, k)
	for _, id := range c.order {
		if id != k {
			order = append(order, id)
		}
	}
	n.order = order
	n.items[k] = v
	return n
}

// Upsert replaces a present id in place and prepends an unseen one.
func (c Collection[K, V]) Upsert(v V) Collection[K, V] {
	if n, ok := c.Replace(v); ok {
		return n
	}
	return c.Prepend(v)
}

// Insert replaces a present id in place; an unseen one goes after the last
// item that does not sort after it, so equal keys keep arrival order.
func (c Collection[K, V]) Insert(v V, less func(a, b V) bool) Collection[K, V] {
	if n, ok := c.Replace(v); ok {
		return n
	}
	pos := len(c.order)
	for pos > 0 && less(v, c.items[c.order[pos-1]]) {
		pos--
	}
	n := c.clone(1)
	order := make([]K, 0, len(c.order)+1)
	order = append(order, c.order[:pos]...)
	order = append(order, c.key(v))
	order = append(order, c.order[pos:]...)
	n.order = order
	n.items[c.key(v)] = v
	return n
}

// Remove drops id. It reports false, returning the receiver, when the id is
// unknown.
func (c Collection[K, V]) Remove(k K) (Collection[K, V], bool) {
	if !c.Has(k) {
		return c, false
	}
	n := c.clone(0)
	order := make([]K, 0, len(c.order)-1)
	for _, id := range c.order {
		if id != k {
			order = append(order, id)
		}
	}
	n.order = order
	delete(n.items, k)
	return n, true
}

// Merge adds a fetched page. Unseen ids are appended (or prepended with
// front set) in page order. A present id is only replaced when newer
// reports the page copy as more recent, so a page fetched before an event
// arrived cannot roll the event back. added counts the unseen ids.
func (c Collection[K, V]) Merge(page []V, front bool, newer func(incoming, current V) bool) (merged Collection[K, V], added int) {
	n := c.clone(len(page))
	var fresh []K
	for _, v := range page {
		k := c.key(v)
		current, present := n.items[k]
		switch {
		case present && newer != nil && newer(v, current):
			n.items[k] = v
		case present:
		default:
			n.items[k] = v
			fresh = append(fresh, k)
		}
	}
	if len(fresh) == 0 {
		return n, 0
	}
	if front {
		n.order = append(fresh, n.order...)
	} else {
		n.order = append(n.order, fresh...)
	}
	return n, len(fresh)
}
