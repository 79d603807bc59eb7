package headers

import (
	"iter"
	"net/http"
	"sort"
	"strings"
)

// Table is a case-insensitive header map that remembers insertion order.
// The zero value is ready to use.
type Table struct {
	order []string
	items map[string]*tableItem
}

type tableItem struct {
	name  string
	value string
}

func NewTable() *Table {
	return &Table{items: make(map[string]*tableItem)}
}

func TableFromText(text string) *Table {
	t := NewTable()
	for _, f := range Parse(text) {
		t.Append(f.Name, f.Value)
	}
	return t
}

func TableFromHTTP(h http.Header) *Table {
	t := NewTable()
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range h[k] {
			t.Append(k, v)
		}
	}
	return t
}

func normName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Append adds value to name, joining onto an existing value with a comma.
func (t *Table) Append(name, value string) {
	key := normName(name)
	if item, ok := t.lookup(key); ok {
		if item.value == "" {
			item.value = value
		} else {
			item.value += "," + value
		}
		return
	}
	t.insert(key, strings.TrimSpace(name), value)
}

func (t *Table) Set(name, value string) {
	key := normName(name)
	if item, ok := t.lookup(key); ok {
		item.name = strings.TrimSpace(name)
		item.value = value
		return
	}
	t.insert(key, strings.TrimSpace(name), value)
}

func (t *Table) Get(name string) (string, bool) {
	item, ok := t.lookup(normName(name))
	if !ok {
		return "", false
	}
	return item.value, true
}

func (t *Table) Has(name string) bool {
	_, ok := t.lookup(normName(name))
	return ok
}

func (t *Table) Delete(name string) {
	key := normName(name)
	if _, ok := t.lookup(key); !ok {
		return
	}
	delete(t.items, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.order)
}

func (t *Table) Entries() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		if t == nil {
			return
		}
		for _, key := range t.order {
			item := t.items[key]
			if !yield(item.name, item.value) {
				return
			}
		}
	}
}

func (t *Table) Keys() iter.Seq[string] {
	return func(yield func(string) bool) {
		for name := range t.Entries() {
			if !yield(name) {
				return
			}
		}
	}
}

func (t *Table) Values() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, value := range t.Entries() {
			if !yield(value) {
				return
			}
		}
	}
}

// Header converts the table into a net/http header.
func (t *Table) Header() http.Header {
	h := make(http.Header, t.Len())
	for name, value := range t.Entries() {
		h.Add(name, value)
	}
	return h
}

func (t *Table) String() string {
	var b strings.Builder
	for name, value := range t.Entries() {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(value)
	}
	return b.String()
}

func (t *Table) lookup(key string) (*tableItem, bool) {
	if t == nil || t.items == nil {
		return nil, false
	}
	item, ok := t.items[key]
	return item, ok
}

func (t *Table) insert(key, name, value string) {
	if t.items == nil {
		t.items = make(map[string]*tableItem)
	}
	t.items[key] = &tableItem{name: name, value: value}
	t.order = append(t.order, key)
}
