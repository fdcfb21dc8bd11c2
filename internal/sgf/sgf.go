// ============================================================================
// Ringmaster SGF - game tree arena and serialiser
// ============================================================================
//
// Package: internal/sgf
// File: sgf.go
//
// Nodes live in a slice owned by the Game and refer to each other by
// NodeID. A node never holds a pointer to another node, so a tree can be
// copied or extended without aliasing.
//
// Serialised layout:
//   - every property is one piece: IDENT[value][value]...
//   - a node's first piece carries its ';'
//   - move properties (B, W) lead their node, the rest follow sorted
//   - pieces are packed into lines of at most 79 columns, never split
//
// ============================================================================

package sgf

import (
	"fmt"
	"slices"
	"strings"
)

// Wrap is the line width used by Serialise.
const Wrap = 79

// NodeID addresses a node within its Game.
type NodeID int

type node struct {
	parent   NodeID // -1 for the root
	children []NodeID
	props    map[string][]string
}

// Game is a game tree. The root always exists and has id 0.
type Game struct {
	size  int
	nodes []node
}

// NewGame returns a tree holding only a root node with FF, GM, SZ and CA set.
func NewGame(size int) *Game {
	g := &Game{size: size, nodes: []node{{parent: -1, props: map[string][]string{}}}}
	root := g.Root()
	g.Set(root, "FF", "4")
	g.Set(root, "GM", "1")
	g.Set(root, "SZ", fmt.Sprint(size))
	g.Set(root, "CA", "utf-8")
	return g
}

// Size returns the board size.
func (g *Game) Size() int { return g.size }

// Root returns the root node id.
func (g *Game) Root() NodeID { return 0 }

// Extend adds a new last child to parent and returns its id.
func (g *Game) Extend(parent NodeID) NodeID {
	g.check(parent)
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, node{parent: parent, props: map[string][]string{}})
	g.nodes[parent].children = append(g.nodes[parent].children, id)
	return id
}

// Set replaces a property's values. Values are raw text; escaping happens
// on serialisation.
func (g *Game) Set(id NodeID, ident string, values ...string) {
	g.check(id)
	g.nodes[id].props[ident] = append([]string(nil), values...)
}

// Unset removes a property.
func (g *Game) Unset(id NodeID, ident string) {
	g.check(id)
	delete(g.nodes[id].props, ident)
}

// Get returns a property's values.
func (g *Game) Get(id NodeID, ident string) ([]string, bool) {
	g.check(id)
	v, ok := g.nodes[id].props[ident]
	return v, ok
}

// Parent returns the parent of id; ok is false for the root.
func (g *Game) Parent(id NodeID) (NodeID, bool) {
	g.check(id)
	p := g.nodes[id].parent
	return p, p >= 0
}

// Children returns the children of id in order.
func (g *Game) Children(id NodeID) []NodeID {
	g.check(id)
	return append([]NodeID(nil), g.nodes[id].children...)
}

// MainSequence returns the root and each first child down to a leaf.
func (g *Game) MainSequence() []NodeID {
	seq := []NodeID{g.Root()}
	for id := g.Root(); len(g.nodes[id].children) > 0; {
		id = g.nodes[id].children[0]
		seq = append(seq, id)
	}
	return seq
}

// LastNode returns the final node of the main sequence.
func (g *Game) LastNode() NodeID {
	seq := g.MainSequence()
	return seq[len(seq)-1]
}

func (g *Game) check(id NodeID) {
	if id < 0 || int(id) >= len(g.nodes) {
		panic(fmt.Sprintf("sgf: node %d not in game", id))
	}
}

// Serialise renders the game as SGF text ending in a newline.
func (g *Game) Serialise() []byte {
	pieces := []string{"("}
	pieces = g.appendSequence(pieces, g.Root())
	pieces = append(pieces, ")")
	return []byte(blockFormat(pieces, Wrap) + "\n")
}

func (g *Game) appendSequence(pieces []string, id NodeID) []string {
	for {
		pieces = append(pieces, g.nodePieces(id)...)
		children := g.nodes[id].children
		switch len(children) {
		case 0:
			return pieces
		case 1:
			id = children[0]
		default:
			for _, child := range children {
				pieces = append(pieces, "(")
				pieces = g.appendSequence(pieces, child)
				pieces = append(pieces, ")")
			}
			return pieces
		}
	}
}

func (g *Game) nodePieces(id NodeID) []string {
	props := g.nodes[id].props
	idents := make([]string, 0, len(props))
	for ident := range props {
		idents = append(idents, ident)
	}
	slices.SortFunc(idents, func(a, b string) int {
		if ma, mb := isMove(a), isMove(b); ma != mb {
			if ma {
				return -1
			}
			return 1
		}
		return strings.Compare(a, b)
	})

	if len(idents) == 0 {
		return []string{";"}
	}
	pieces := make([]string, len(idents))
	for i, ident := range idents {
		var sb strings.Builder
		if i == 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(ident)
		for _, v := range props[ident] {
			sb.WriteByte('[')
			sb.WriteString(EscapeText(v))
			sb.WriteByte(']')
		}
		pieces[i] = sb.String()
	}
	return pieces
}

func isMove(ident string) bool {
	return ident == "B" || ident == "W"
}

// EscapeText escapes a value for use between brackets.
func EscapeText(s string) string {
	if !strings.ContainsAny(s, `\]`) {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `]`, `\]`)
	return r.Replace(s)
}

// blockFormat packs pieces into lines, starting a new line whenever the
// next piece would take the current one past width. Lengths are byte
// counts of everything since the last wrap, embedded newlines included.
func blockFormat(pieces []string, width int) string {
	var lines []string
	line := ""
	for _, p := range pieces {
		if len(line)+len(p) > width && line != "" {
			lines = append(lines, line)
			line = ""
		}
		line += p
	}
	if line != "" {
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
