package dom

import "strings"

// Selector names a set of elements: a tag constraint and a loose
// predicate. The zero value matches every element.
//
// The predicate is deliberately forgiving so real-world listing markup
// keeps matching across minor site redesigns:
//
//   - empty      matches everything
//   - `k="v"`    exact equality on attribute k (substring on k=class)
//   - otherwise  substring of the class attribute, then of any
//     attribute value
type Selector struct {
	Tag   string `json:"tag" mapstructure:"tag"`
	Match string `json:"match,omitempty" mapstructure:"match"`
}

// IsZero reports whether the selector constrains nothing.
func (s Selector) IsZero() bool { return s.Tag == "" && s.Match == "" }

// Matches reports whether the element at idx satisfies the selector.
// Text nodes and the synthetic root never match.
func (d *Document) Matches(idx int, sel Selector) bool {
	if idx <= Root || idx >= len(d.nodes) {
		return false
	}
	n := d.nodes[idx]
	if n.Kind != KindElement {
		return false
	}
	if sel.Tag != "" && n.Tag != sel.Tag {
		return false
	}
	if sel.Match == "" {
		return true
	}
	if key, val, ok := splitAttrForm(sel.Match); ok {
		got, found := d.Attr(idx, key)
		if !found {
			return false
		}
		if key == "class" {
			return strings.Contains(got, val)
		}
		return got == val
	}
	if class, ok := d.Attr(idx, "class"); ok && strings.Contains(class, sel.Match) {
		return true
	}
	for _, a := range n.Attrs {
		if strings.Contains(a.Val, sel.Match) {
			return true
		}
	}
	return false
}

// splitAttrForm recognizes predicates written as k="v".
func splitAttrForm(m string) (key, val string, ok bool) {
	i := strings.Index(m, `="`)
	if i <= 0 || !strings.HasSuffix(m, `"`) {
		return "", "", false
	}
	return m[:i], m[i+2 : len(m)-1], true
}

// Find returns the indexes of all elements in the subtree rooted at
// start that match sel, in document order. The start node itself is
// tested too; some sites reuse the result-card selector for a field
// inside it.
func (d *Document) Find(start int, sel Selector) []int {
	var out []int
	if d.Matches(start, sel) {
		out = append(out, start)
	}
	d.walk(start, func(idx int) bool {
		if d.Matches(idx, sel) {
			out = append(out, idx)
		}
		return true
	})
	return out
}

// FindFirst returns the first matching element in the subtree rooted at
// start, or -1.
func (d *Document) FindFirst(start int, sel Selector) int {
	if d.Matches(start, sel) {
		return start
	}
	found := -1
	d.walk(start, func(idx int) bool {
		if d.Matches(idx, sel) {
			found = idx
			return false
		}
		return true
	})
	return found
}

// walk visits the descendants of start in pre-order until fn returns
// false.
func (d *Document) walk(start int, fn func(int) bool) {
	if start < 0 || start >= len(d.nodes) {
		return
	}
	stack := make([]int, 0, 16)
	for i := len(d.nodes[start].Children) - 1; i >= 0; i-- {
		stack = append(stack, d.nodes[start].Children[i])
	}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(idx) {
			return
		}
		children := d.nodes[idx].Children
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
}
