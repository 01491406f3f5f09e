/*
params.go - Nested parameter trees built from long-form tables

PURPOSE:
  Parameter tables arrive long-form: (key1, ..., keyN, parameter, value).
  Build turns them into a tree whose branches are the grouping keys and whose
  leaves hold {parameter: value}. Every calculation stage reads its rules
  from such a tree (see factory).

SHAPE:
  A Node is either a Leaf (a raw scalar) or a Branch (ordered children).

    n columns -> (n-2) grouping levels -> {parameter: value}
    1 column  -> ordered list of keys (List)
    2 columns -> MalformedParameters
    > MaxDepth grouping levels -> ParameterDepthExceeded

  Leaf values are kept raw and parsed on demand: the update table carries a
  role name in its value column, the others carry numbers.

ENUMERATION:
  Walk visits leaves depth-first with the full key path. Child order follows
  first insertion, so rows sharing a group are visited together in the order
  the group first appeared.
*/
package generic

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxDepth is the deepest grouping a parameter table may declare.
const MaxDepth = 7

// Table is a long-form table with a header row.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
}

func (t *Table) Width() int { return len(t.Header) }

// Node is a parameter tree node: a leaf scalar or a branch of children.
type Node struct {
	leaf     bool
	raw      string
	keys     []string
	children map[string]*Node
}

func newBranch() *Node {
	return &Node{children: make(map[string]*Node)}
}

// Build converts a long-form table into a nested parameter tree.
func Build(t *Table) (*Node, error) {
	width := t.Width()
	switch {
	case width == 0:
		return nil, &ParameterError{Table: t.Name, Reason: "table has no columns"}
	case width == 2:
		return nil, &ParameterError{Table: t.Name, Reason: "two columns leave no grouping key"}
	case width-2 > MaxDepth:
		return nil, &DepthError{Table: t.Name, Depth: width - 2, Max: MaxDepth}
	}

	root := newBranch()
	for i, row := range t.Rows {
		if len(row) != width {
			return nil, &ParameterError{
				Table:  t.Name,
				Row:    i + 1,
				Reason: fmt.Sprintf("row has %d columns, header has %d", len(row), width),
			}
		}
		if width == 1 {
			root.branch(strings.TrimSpace(row[0]))
			continue
		}

		n := root
		for _, key := range row[:width-2] {
			n = n.branch(strings.TrimSpace(key))
			if n == nil {
				return nil, &ParameterError{Table: t.Name, Row: i + 1, Identifier: key, Reason: "key is both a parameter and a group"}
			}
		}
		param := strings.TrimSpace(row[width-2])
		if _, exists := n.children[param]; exists {
			return nil, &ParameterError{
				Table:      t.Name,
				Row:        i + 1,
				Identifier: strings.Join(append(row[:width-2:width-2], param), "/"),
				Reason:     "duplicate parameter",
			}
		}
		n.keys = append(n.keys, param)
		n.children[param] = &Node{leaf: true, raw: strings.TrimSpace(row[width-1])}
	}
	return root, nil
}

// branch returns the child branch for key, creating it when absent.
// Returns nil when key already names a leaf.
func (n *Node) branch(key string) *Node {
	if c, ok := n.children[key]; ok {
		if c.leaf {
			return nil
		}
		return c
	}
	c := newBranch()
	n.keys = append(n.keys, key)
	n.children[key] = c
	return c
}

func (n *Node) IsLeaf() bool { return n.leaf }

// Raw returns the unparsed leaf value.
func (n *Node) Raw() string { return n.raw }

// Decimal parses the leaf value.
func (n *Node) Decimal() (decimal.Decimal, error) {
	if !n.leaf {
		return decimal.Zero, fmt.Errorf("not a leaf")
	}
	return decimal.NewFromString(n.raw)
}

// List returns the keys of a branch in insertion order. For a one-column
// table this is the column itself.
func (n *Node) List() []string {
	return append([]string(nil), n.keys...)
}

func (n *Node) Len() int { return len(n.keys) }

func (n *Node) Child(key string) (*Node, bool) {
	if n.leaf {
		return nil, false
	}
	c, ok := n.children[key]
	return c, ok
}

// Lookup follows keys from n.
func (n *Node) Lookup(keys ...string) (*Node, bool) {
	cur := n
	for _, k := range keys {
		next, ok := cur.Child(k)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Depth is the number of grouping levels below n (0 for a leaf or an empty
// branch, 1 for a branch of leaves or a key list).
func (n *Node) Depth() int {
	if n.leaf || len(n.keys) == 0 {
		return 0
	}
	max := 0
	for _, c := range n.children {
		if d := c.Depth(); d > max {
			max = d
		}
	}
	return max + 1
}

// Walk visits every leaf with its grouping keys and parameter name.
// Returning an error stops the walk.
func (n *Node) Walk(fn func(keys []string, param string, leaf *Node) error) error {
	return n.walk(nil, fn)
}

func (n *Node) walk(prefix []string, fn func([]string, string, *Node) error) error {
	for _, k := range n.keys {
		c := n.children[k]
		if c.leaf {
			if err := fn(append([]string(nil), prefix...), k, c); err != nil {
				return err
			}
			continue
		}
		if err := c.walk(append(prefix, k), fn); err != nil {
			return err
		}
	}
	return nil
}
