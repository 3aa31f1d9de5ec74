package ring

import (
	"fmt"
	"testing"
)

type testNode string

func (n testNode) Name() string { return string(n) }

func threeNodes() []testNode {
	return []testNode{"node1", "node2", "node3"}
}

func TestRing_Get(t *testing.T) {
	ring := NewRing[testNode](64)
	ring.SetNodes(threeNodes())

	// Test that same key always maps to same node (determinism)
	key := "test-key-123"
	node1, found1 := ring.Get(key)
	if !found1 {
		t.Fatal("Expected to find a responsible node")
	}

	node2, found2 := ring.Get(key)
	if !found2 {
		t.Fatal("Expected to find a responsible node")
	}

	if node1 != node2 {
		t.Errorf("Determinism failed: same key mapped to different nodes: %s vs %s", node1, node2)
	}
}

func TestRing_GetPicksSmallestHashAtOrAfterKey(t *testing.T) {
	ring := NewRing[testNode](8)
	for _, n := range threeNodes() {
		ring.AddNode(n)
	}

	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("key-%d", i)
		h := Hash(key)

		// Brute force the expected owner.
		var best entry[testNode]
		hasBest := false
		ring.entries.Ascend(func(e entry[testNode]) bool {
			if e.hash >= h {
				best, hasBest = e, true
				return false
			}
			return true
		})
		if !hasBest {
			best, _ = ring.entries.Min()
		}

		got, ok := ring.Get(key)
		if !ok {
			t.Fatalf("Get(%q) found nothing", key)
		}
		if got != best.node {
			t.Errorf("Get(%q) = %s, want %s", key, got, best.node)
		}
	}
}

func TestRing_GetWrapsAround(t *testing.T) {
	ring := NewRing[testNode](4)
	ring.SetNodes(threeNodes())

	last, _ := ring.entries.Max()
	first, _ := ring.entries.Min()

	// Find a key hashing past the last entry.
	var key string
	for i := 0; ; i++ {
		key = fmt.Sprintf("wrap-%d", i)
		if Hash(key) > last.hash {
			break
		}
		if i > 1_000_000 {
			t.Skip("no key hashes past the last entry")
		}
	}

	got, ok := ring.Get(key)
	if !ok || got != first.node {
		t.Errorf("Get(%q) = %s, %v; want wrap to %s", key, got, ok, first.node)
	}
}

func TestRing_Determinism(t *testing.T) {
	ring1 := NewRing[testNode](64)
	ring2 := NewRing[testNode](64)

	ring1.SetNodes(threeNodes())
	ring2.SetNodes(threeNodes())

	// Test multiple keys
	testKeys := []string{"key1", "key2", "key3", "key4", "key5", "key100", "key999"}

	for _, key := range testKeys {
		node1, _ := ring1.Get(key)
		node2, _ := ring2.Get(key)
		if node1 != node2 {
			t.Errorf("Determinism failed for key %s: %s != %s", key, node1, node2)
		}
	}
}

func TestRing_Distribution(t *testing.T) {
	ring := NewRing[testNode](128)
	ring.SetNodes(threeNodes())

	// Test distribution across many keys
	distribution := make(map[testNode]int)
	numKeys := 1000

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("key-%d", i)
		node, found := ring.Get(key)
		if !found {
			t.Fatalf("Expected to find node for key %s", key)
		}
		distribution[node]++
	}

	// Check that all nodes got some keys
	if len(distribution) != 3 {
		t.Errorf("Expected 3 nodes to have keys, got %d", len(distribution))
	}

	// Check that no single node has >90% of keys (sanity check)
	for node, count := range distribution {
		percentage := float64(count) / float64(numKeys) * 100
		if percentage > 90 {
			t.Errorf("Node %s has %.2f%% of keys (too high)", node, percentage)
		}
	}
}

func TestRing_NodeRemoval(t *testing.T) {
	ring := NewRing[testNode](64)
	ring.SetNodes(threeNodes())

	// Remove a node
	ring.RemoveNode("node2")

	// Check that ring still works
	testKeys := []string{"key1", "key2", "key3", "key4", "key5"}
	for _, key := range testKeys {
		node, found := ring.Get(key)
		if !found {
			t.Errorf("Expected to find node for key %s after removal", key)
		}
		if node == "node2" {
			t.Errorf("Key %s still mapped to removed node node2", key)
		}
	}

	// Verify node2 is gone
	for _, node := range ring.Nodes() {
		if node == "node2" {
			t.Error("node2 should be removed from ring")
		}
	}
	if got := ring.Len(); got != 2*64 {
		t.Errorf("Len() = %d, want %d", got, 2*64)
	}
}

func TestRing_RemoveUnknownNodeIsNoop(t *testing.T) {
	ring := NewRing[testNode](16)
	ring.SetNodes(threeNodes())
	before := ring.Len()

	ring.RemoveNode("never-added")

	if ring.Len() != before {
		t.Errorf("Len() = %d after removing unknown node, want %d", ring.Len(), before)
	}
}

func TestRing_AddNode(t *testing.T) {
	ring := NewRing[testNode](64)
	ring.AddNode("node1")

	// Add a new node
	ring.AddNode("node2")

	allNodes := ring.Nodes()
	if len(allNodes) != 2 {
		t.Errorf("Expected 2 nodes, got %d", len(allNodes))
	}

	nodeIDs := make(map[testNode]bool)
	for _, node := range allNodes {
		nodeIDs[node] = true
	}
	if !nodeIDs["node1"] || !nodeIDs["node2"] {
		t.Error("Expected both node1 and node2 in ring")
	}
}

func TestRing_AddNodeIdempotent(t *testing.T) {
	ring := NewRing[testNode](10)
	ring.AddNode("node1")
	ring.AddNode("node1")

	if got := ring.Len(); got != 10 {
		t.Errorf("Len() = %d, want 10", got)
	}
	if got := len(ring.Nodes()); got != 1 {
		t.Errorf("len(Nodes()) = %d, want 1", got)
	}
}

func TestRing_EmptyRing(t *testing.T) {
	ring := NewRing[testNode](64)
	if !ring.IsEmpty() {
		t.Error("Expected new ring to be empty")
	}
	node, found := ring.Get("any-key")
	if found {
		t.Error("Expected no node found for empty ring")
	}
	if node != "" {
		t.Error("Expected empty node for empty ring")
	}
	if len(ring.Nodes()) != 0 {
		t.Error("Expected no nodes for empty ring")
	}
}

func TestRing_RemoveLastNodeEmptiesRing(t *testing.T) {
	ring := NewRing[testNode](8)
	ring.AddNode("node1")
	ring.RemoveNode("node1")

	if !ring.IsEmpty() {
		t.Error("Expected ring to be empty after removing its only node")
	}
	if _, found := ring.Get("k"); found {
		t.Error("Expected no owner on an empty ring")
	}
}

func TestNewRing_DefaultReplicas(t *testing.T) {
	ring := NewRing[testNode](0)
	if ring.Replicas() != DefaultReplicas {
		t.Errorf("Replicas() = %d, want %d", ring.Replicas(), DefaultReplicas)
	}
}

func TestRing_NodesOrderedByFirstAppearance(t *testing.T) {
	ring := NewRing[testNode](8)
	ring.SetNodes(threeNodes())

	var want []testNode
	seen := map[testNode]bool{}
	ring.entries.Ascend(func(e entry[testNode]) bool {
		if !seen[e.node] {
			seen[e.node] = true
			want = append(want, e.node)
		}
		return true
	})

	got := ring.Nodes()
	if len(got) != len(want) {
		t.Fatalf("Nodes() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Nodes()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
