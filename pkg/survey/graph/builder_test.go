package graph

import (
	"testing"

	"github.com/formwalk/formwalk/pkg/survey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func block(id string) survey.Node {
	return survey.Node{Block: survey.Block{UUID: id, Type: survey.BlockTypeInput, FieldName: "f_" + id}}
}

func set(id string, items ...survey.Node) survey.Node {
	return survey.Node{Block: survey.Block{UUID: id, Type: survey.BlockTypeSet}, Items: items}
}

func twoPageTree() *survey.Node {
	root := set("root",
		set("page-1", block("b1"), block("b2")),
		set("page-2", block("b3")),
	)
	return &root
}

func TestBuildMode_Paged(t *testing.T) {
	g := BuildMode(twoPageTree(), survey.ModePaged)

	require.Len(t, g.Pages, 2)
	assert.Equal(t, "page-1", g.Pages[0].UUID)
	require.Len(t, g.Pages[0].Blocks, 2)
	assert.Equal(t, "b1", g.Pages[0].Blocks[0].UUID)
	assert.Equal(t, "b2", g.Pages[0].Blocks[1].UUID)
	require.Len(t, g.Pages[1].Blocks, 1)

	assert.Equal(t, 1, g.PageIndex["page-2"])
	assert.Equal(t, Position{Page: 0, Block: 1}, g.BlockIndex["b2"])
	assert.Equal(t, Position{Page: 1, Block: 0}, g.BlockIndex["b3"])
}

func TestBuildMode_Pageless(t *testing.T) {
	root := set("root", block("a"), block("b"), block("c"))
	g := BuildMode(&root, survey.ModePageless)

	// Three declared blocks become three single-block pages in order.
	require.Len(t, g.Pages, 3)
	for i, id := range []string{"a", "b", "c"} {
		require.Len(t, g.Pages[i].Blocks, 1)
		assert.Equal(t, id, g.Pages[i].Blocks[0].UUID)
		assert.Equal(t, id, g.Pages[i].UUID)
		assert.Equal(t, Position{Page: i, Block: 0}, g.BlockIndex[id])
	}
}

func TestBuildMode_PagelessFlattensSets(t *testing.T) {
	root := set("root", set("s1", block("a"), block("b")), block("c"))
	g := BuildMode(&root, survey.ModePageless)

	require.Len(t, g.Pages, 3)
	assert.Equal(t, "a", g.Pages[0].UUID)
	assert.Equal(t, "c", g.Pages[2].UUID)
}

func TestBuildMode_PromotesStrayTopLevelBlock(t *testing.T) {
	root := set("root", block("stray"), set("p1", block("b1")))
	g := BuildMode(&root, survey.ModePaged)

	require.Len(t, g.Pages, 2)
	assert.Equal(t, "stray", g.Pages[0].UUID)
	require.Len(t, g.Pages[0].Blocks, 1)
}

func TestBuildMode_NestedSetsFlattenIntoParentPage(t *testing.T) {
	root := set("root", set("p1", block("b1"), set("inner", block("b2"), block("b3"))))
	g := BuildMode(&root, survey.ModePaged)

	require.Len(t, g.Pages, 1)
	require.Len(t, g.Pages[0].Blocks, 3)
	assert.Equal(t, "b3", g.Pages[0].Blocks[2].UUID)
}

func TestBuildMode_DegradedInputs(t *testing.T) {
	for name, g := range map[string]*Graph{
		"nil root":   BuildMode(nil, survey.ModePaged),
		"empty root": BuildMode(&survey.Node{}, survey.ModePaged),
		"nil def":    Build(nil),
	} {
		require.NotNil(t, g, name)
		require.Len(t, g.Pages, 1, name)
		assert.Empty(t, g.Pages[0].Blocks, name)
	}
}

func TestBuild_UsesDefinitionMode(t *testing.T) {
	def := &survey.Definition{Mode: survey.ModePageless, RootNode: set("root", block("a"), block("b"))}
	g := Build(def)
	assert.Len(t, g.Pages, 2)
}

func TestGraph_Resolve(t *testing.T) {
	g := BuildMode(twoPageTree(), survey.ModePaged)

	pos, ok := g.Resolve("page-1", "b2")
	require.True(t, ok)
	assert.Equal(t, Position{Page: 0, Block: 1}, pos)

	// Block uuid wins over page uuid.
	pos, ok = g.Resolve("page-1", "b3")
	require.True(t, ok)
	assert.Equal(t, Position{Page: 1, Block: 0}, pos)

	// Page-only reference lands on the first block.
	pos, ok = g.Resolve("page-2", "")
	require.True(t, ok)
	assert.Equal(t, Position{Page: 1, Block: 0}, pos)

	// Stale block falls back to the page when the page still exists.
	pos, ok = g.Resolve("page-1", "deleted")
	require.True(t, ok)
	assert.Equal(t, Position{Page: 0, Block: 0}, pos)

	_, ok = g.Resolve("gone", "also-gone")
	assert.False(t, ok)
}

func TestGraph_ResolveSurvivesReorder(t *testing.T) {
	g1 := BuildMode(twoPageTree(), survey.ModePaged)
	before, ok := g1.Resolve("", "b3")
	require.True(t, ok)
	require.Equal(t, Position{Page: 1, Block: 0}, before)

	// Editor moves page-2 first; the uuid now maps to a new index.
	reordered := set("root",
		set("page-2", block("b3")),
		set("page-1", block("b1"), block("b2")),
	)
	g2 := BuildMode(&reordered, survey.ModePaged)
	after, ok := g2.Resolve("", "b3")
	require.True(t, ok)
	assert.Equal(t, Position{Page: 0, Block: 0}, after)
}

func TestGraph_BlockAt(t *testing.T) {
	g := BuildMode(twoPageTree(), survey.ModePaged)

	require.NotNil(t, g.BlockAt(Position{Page: 0, Block: 1}))
	assert.Equal(t, "b2", g.BlockAt(Position{Page: 0, Block: 1}).UUID)
	assert.Nil(t, g.BlockAt(Position{Page: 5, Block: 0}))
	assert.Nil(t, g.BlockAt(Position{Page: 0, Block: 9}))
	assert.Nil(t, g.BlockAt(Position{Page: -1, Block: 0}))
}

func TestGraph_PageUUIDs(t *testing.T) {
	g := BuildMode(twoPageTree(), survey.ModePaged)
	assert.Equal(t, []string{"page-1", "page-2"}, g.PageUUIDs())
}
