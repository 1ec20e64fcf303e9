package graph

import "github.com/shiv669/echo-core-go/internal/models"

// edgeThreshold is the minimum Jaccard similarity for two nodes to be linked.
const edgeThreshold = 0.1

// Edge links two related nodes. Source always carries the smaller node id,
// so one pair never produces two mirrored edges.
type Edge struct {
	Source int64   `json:"source"`
	Target int64   `json:"target"`
	Weight float64 `json:"weight"`
}

// BuildEdges scores every unordered pair across the whole node population and
// keeps the pairs whose concept overlap reaches the threshold. The scan is
// quadratic in the number of nodes; edges are recomputed per request rather
// than stored.
func BuildEdges(nodes []models.NodeModel) []Edge {
	edges := make([]Edge, 0)
	if len(nodes) < 2 {
		return edges
	}

	sets := make([]map[string]struct{}, len(nodes))
	for i := range nodes {
		sets[i] = conceptSet(&nodes[i])
	}

	for i := 0; i < len(nodes); i++ {
		if len(sets[i]) == 0 {
			continue
		}
		for j := i + 1; j < len(nodes); j++ {
			if len(sets[j]) == 0 {
				continue
			}
			weight := jaccard(sets[i], sets[j])
			if weight < edgeThreshold {
				continue
			}
			source, target := nodes[i].ID, nodes[j].ID
			if target < source {
				source, target = target, source
			}
			edges = append(edges, Edge{Source: source, Target: target, Weight: weight})
		}
	}
	return edges
}

// conceptSet merges a node's key concepts and methods into one comparison
// set. Related topics are not part of it.
func conceptSet(node *models.NodeModel) map[string]struct{} {
	set := make(map[string]struct{}, len(node.Summary.KeyConcepts)+len(node.Summary.MethodsUsed))
	for _, c := range node.Summary.KeyConcepts {
		set[c] = struct{}{}
	}
	for _, m := range node.Summary.MethodsUsed {
		set[m] = struct{}{}
	}
	return set
}

// jaccard computes |a ∩ b| / |a ∪ b|.
func jaccard(a, b map[string]struct{}) float64 {
	intersection := 0
	union := make(map[string]struct{}, len(a)+len(b))
	for key := range a {
		union[key] = struct{}{}
		if _, ok := b[key]; ok {
			intersection++
		}
	}
	for key := range b {
		union[key] = struct{}{}
	}
	if len(union) == 0 {
		return 0
	}
	return float64(intersection) / float64(len(union))
}
