// Package graph flattens a survey definition tree into ordered pages of
// ordered blocks, with UUID indexes alongside.
//
// The flattened form is rebuilt from scratch whenever the tree reference
// changes (editor restructure, visibility filtering). Consumers that need
// to survive rebuilds, the navigation history in particular, hold UUIDs
// and re-resolve them through the fresh indexes, never positions.
package graph

import (
	"github.com/formwalk/formwalk/pkg/survey"
)

// Position addresses one block in the flattened graph.
type Position struct {
	Page  int `json:"page"`
	Block int `json:"block"`
}

// Page is an ordered list of blocks with the UUID of the set that
// produced it. Promoted single-block pages reuse their block's UUID.
type Page struct {
	UUID   string
	Blocks []*survey.Block
}

// Graph is the flattened survey: pages in presentation order plus the
// uuid indexes used to resolve stable references back to positions.
type Graph struct {
	Pages      []Page
	PageIndex  map[string]int
	BlockIndex map[string]Position
}

// Build flattens a definition using its declared mode.
func Build(def *survey.Definition) *Graph {
	if def == nil {
		return empty()
	}
	return BuildMode(&def.RootNode, def.Mode)
}

// BuildMode flattens the tree rooted at root. Pure and deterministic: the
// same tree and mode always produce the same graph. A nil or malformed
// root yields a single empty page so downstream consumers always have at
// least one addressable page.
func BuildMode(root *survey.Node, mode survey.Mode) *Graph {
	if root == nil || len(root.Items) == 0 {
		return empty()
	}

	g := &Graph{
		PageIndex:  make(map[string]int),
		BlockIndex: make(map[string]Position),
	}

	if mode == survey.ModePageless {
		// Every block becomes its own single-block page, declared order.
		for i := range root.Items {
			collectBlocks(&root.Items[i], func(b *survey.Block) {
				g.addPage(Page{UUID: b.UUID, Blocks: []*survey.Block{b}})
			})
		}
	} else {
		for i := range root.Items {
			child := &root.Items[i]
			if child.IsSet() {
				page := Page{UUID: child.UUID}
				collectBlocks(child, func(b *survey.Block) {
					page.Blocks = append(page.Blocks, b)
				})
				g.addPage(page)
				continue
			}
			// A stray top-level block is promoted to its own page so
			// authoring mistakes stay navigable.
			g.addPage(Page{UUID: child.UUID, Blocks: []*survey.Block{&child.Block}})
		}
	}

	if len(g.Pages) == 0 {
		return empty()
	}
	return g
}

// Resolve maps stable uuid references back to a concrete position in this
// build. The block uuid wins when both resolve; a page uuid alone lands on
// the page's first block. Returns false when neither resolves; the entry
// is stale relative to this build.
func (g *Graph) Resolve(pageUUID, blockUUID string) (Position, bool) {
	if blockUUID != "" {
		if pos, ok := g.BlockIndex[blockUUID]; ok {
			return pos, true
		}
	}
	if pageUUID != "" {
		if idx, ok := g.PageIndex[pageUUID]; ok {
			return Position{Page: idx, Block: 0}, true
		}
	}
	return Position{}, false
}

// BlockAt returns the block at the given position, or nil when the
// position is out of range (possible after a rebuild shrank the graph).
func (g *Graph) BlockAt(pos Position) *survey.Block {
	if pos.Page < 0 || pos.Page >= len(g.Pages) {
		return nil
	}
	page := g.Pages[pos.Page]
	if pos.Block < 0 || pos.Block >= len(page.Blocks) {
		return nil
	}
	return page.Blocks[pos.Block]
}

// PageUUIDs returns the page uuids in presentation order.
func (g *Graph) PageUUIDs() []string {
	out := make([]string, len(g.Pages))
	for i, p := range g.Pages {
		out[i] = p.UUID
	}
	return out
}

func (g *Graph) addPage(p Page) {
	idx := len(g.Pages)
	g.Pages = append(g.Pages, p)
	if p.UUID != "" {
		if _, dup := g.PageIndex[p.UUID]; !dup {
			g.PageIndex[p.UUID] = idx
		}
	}
	for bi, b := range p.Blocks {
		if b.UUID == "" {
			continue
		}
		if _, dup := g.BlockIndex[b.UUID]; !dup {
			g.BlockIndex[b.UUID] = Position{Page: idx, Block: bi}
		}
	}
}

// collectBlocks visits every non-set descendant in declared order.
// Nested sets are flattened into their parent page.
func collectBlocks(n *survey.Node, visit func(*survey.Block)) {
	if !n.IsSet() {
		visit(&n.Block)
		return
	}
	for i := range n.Items {
		collectBlocks(&n.Items[i], visit)
	}
}

func empty() *Graph {
	return &Graph{
		Pages:      []Page{{}},
		PageIndex:  map[string]int{},
		BlockIndex: map[string]Position{},
	}
}
