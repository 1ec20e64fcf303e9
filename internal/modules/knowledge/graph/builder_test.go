package graph

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/shiv669/echo-core-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNode(id int64, concepts, methods, topics []string) models.NodeModel {
	return models.NodeModel{
		ID:    id,
		Title: fmt.Sprintf("Source #%d", id),
		Summary: models.StructuredSummary{
			KeyConcepts:   models.StringSlice(concepts),
			MethodsUsed:   models.StringSlice(methods),
			RelatedTopics: models.StringSlice(topics),
			Insights:      "insight",
		},
	}
}

func TestBuildEdgesSharedConcepts(t *testing.T) {
	nodes := []models.NodeModel{
		testNode(1, []string{"x", "y"}, nil, nil),
		testNode(2, []string{"y", "z"}, nil, nil),
	}
	edges := BuildEdges(nodes)
	require.Len(t, edges, 1)
	assert.Equal(t, int64(1), edges[0].Source)
	assert.Equal(t, int64(2), edges[0].Target)
	assert.InDelta(t, 1.0/3.0, edges[0].Weight, 1e-12)
}

func TestBuildEdgesThresholdBoundary(t *testing.T) {
	// One shared element over a union of ten gives exactly the threshold, and
	// the threshold is inclusive.
	a := testNode(1, []string{"shared", "a1", "a2", "a3", "a4"}, nil, nil)
	b := testNode(2, []string{"shared", "b1", "b2", "b3", "b4", "b5"}, nil, nil)
	edges := BuildEdges([]models.NodeModel{a, b})
	require.Len(t, edges, 1)
	assert.Equal(t, 0.1, edges[0].Weight)

	// One shared element over a union of eleven falls below it.
	b = testNode(2, []string{"shared", "b1", "b2", "b3", "b4", "b5", "b6"}, nil, nil)
	edges = BuildEdges([]models.NodeModel{a, b})
	assert.Empty(t, edges)
}

func TestBuildEdgesMergesConceptsAndMethods(t *testing.T) {
	// A concept on one node matching a method on the other still links them.
	nodes := []models.NodeModel{
		testNode(1, []string{"transformers"}, nil, nil),
		testNode(2, nil, []string{"transformers"}, nil),
	}
	edges := BuildEdges(nodes)
	require.Len(t, edges, 1)
	assert.Equal(t, 1.0, edges[0].Weight)
}

func TestBuildEdgesSetSemantics(t *testing.T) {
	// Repeated terms within a node collapse to one set element.
	nodes := []models.NodeModel{
		testNode(1, []string{"go", "go"}, []string{"go"}, nil),
		testNode(2, []string{"go"}, nil, nil),
	}
	edges := BuildEdges(nodes)
	require.Len(t, edges, 1)
	assert.Equal(t, 1.0, edges[0].Weight)
}

func TestBuildEdgesIgnoresRelatedTopics(t *testing.T) {
	// Overlap that exists only in related topics never creates an edge.
	nodes := []models.NodeModel{
		testNode(1, []string{"a"}, nil, []string{"common"}),
		testNode(2, []string{"b"}, nil, []string{"common"}),
	}
	assert.Empty(t, BuildEdges(nodes))

	// A pair whose only signal is related topics is skipped outright.
	nodes = []models.NodeModel{
		testNode(1, nil, nil, []string{"common"}),
		testNode(2, nil, nil, []string{"common"}),
	}
	assert.Empty(t, BuildEdges(nodes))
}

func TestBuildEdgesSkipsEmptySignalNodes(t *testing.T) {
	nodes := []models.NodeModel{
		testNode(1, []string{"graphs"}, nil, nil),
		testNode(2, nil, nil, nil),
		testNode(3, []string{"graphs"}, nil, nil),
	}
	edges := BuildEdges(nodes)
	require.Len(t, edges, 1)
	assert.Equal(t, int64(1), edges[0].Source)
	assert.Equal(t, int64(3), edges[0].Target)
}

func TestBuildEdgesCanonicalOrdering(t *testing.T) {
	forward := BuildEdges([]models.NodeModel{
		testNode(1, []string{"x"}, nil, nil),
		testNode(2, []string{"x"}, nil, nil),
	})
	reversed := BuildEdges([]models.NodeModel{
		testNode(2, []string{"x"}, nil, nil),
		testNode(1, []string{"x"}, nil, nil),
	})
	require.Len(t, forward, 1)
	assert.Equal(t, forward, reversed, "input order must not change the emitted edge")
	assert.Less(t, forward[0].Source, forward[0].Target)
}

func TestBuildEdgesEachPairOnce(t *testing.T) {
	nodes := []models.NodeModel{
		testNode(1, []string{"x"}, nil, nil),
		testNode(2, []string{"x"}, nil, nil),
		testNode(3, []string{"x"}, nil, nil),
	}
	edges := BuildEdges(nodes)
	require.Len(t, edges, 3)

	seen := make(map[[2]int64]bool)
	for _, e := range edges {
		assert.NotEqual(t, e.Source, e.Target, "no self edges")
		assert.Less(t, e.Source, e.Target)
		key := [2]int64{e.Source, e.Target}
		assert.False(t, seen[key], "pair %v emitted twice", key)
		seen[key] = true
	}
}

func TestBuildEdgesSmallPopulations(t *testing.T) {
	edges := BuildEdges(nil)
	assert.NotNil(t, edges)
	assert.Empty(t, edges)

	edges = BuildEdges([]models.NodeModel{testNode(1, []string{"x"}, nil, nil)})
	assert.NotNil(t, edges)
	assert.Empty(t, edges)
}

func TestJaccard(t *testing.T) {
	set := func(items ...string) map[string]struct{} {
		s := make(map[string]struct{}, len(items))
		for _, item := range items {
			s[item] = struct{}{}
		}
		return s
	}

	assert.Equal(t, 1.0, jaccard(set("a", "b"), set("a", "b")))
	assert.Equal(t, 0.0, jaccard(set("a"), set("b")))
	assert.InDelta(t, 1.0/3.0, jaccard(set("a", "b"), set("b", "c")), 1e-12)
	assert.Equal(t, 0.0, jaccard(set(), set()))
}

func TestEdgeWireFormat(t *testing.T) {
	encoded, err := json.Marshal(Edge{Source: 1, Target: 2, Weight: 0.5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"source":1,"target":2,"weight":0.5}`, string(encoded))
}
