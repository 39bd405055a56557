package catalog

import "slices"

// ordered is a string-keyed collection that remembers insertion order.
// Replacing a value keeps its position; deleting and re-adding moves it
// to the end, matching how the repositories persist records.
type ordered[V any] struct {
	keys   []string
	values map[string]V
}

func newOrdered[V any](capacity int) *ordered[V] {
	return &ordered[V]{
		keys:   make([]string, 0, capacity),
		values: make(map[string]V, capacity),
	}
}

func (o *ordered[V]) get(key string) (V, bool) {
	v, ok := o.values[key]
	return v, ok
}

func (o *ordered[V]) put(key string, v V) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

func (o *ordered[V]) delete(key string) bool {
	if _, ok := o.values[key]; !ok {
		return false
	}
	delete(o.values, key)
	if i := slices.Index(o.keys, key); i >= 0 {
		o.keys = slices.Delete(o.keys, i, i+1)
	}
	return true
}

func (o *ordered[V]) len() int {
	return len(o.keys)
}

// each visits values in insertion order.
func (o *ordered[V]) each(fn func(key string, v V)) {
	for _, k := range o.keys {
		fn(k, o.values[k])
	}
}
