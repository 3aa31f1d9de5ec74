package ring

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/btree"
)

// DefaultReplicas is the number of virtual nodes per physical node used when
// a non-positive count is requested.
const DefaultReplicas = 3

// degree of the entry B-tree.
const degree = 16

// Node is anything placed on the ring. Two nodes are the same node iff their
// names are equal.
type Node interface {
	Name() string
}

// Cluster is the membership and lookup contract the router depends on.
type Cluster[N Node] interface {
	IsEmpty() bool
	AddNode(node N)
	RemoveNode(node N)
	Get(key string) (N, bool)
	Nodes() []N
}

// entry is one virtual node position on the ring.
type entry[N Node] struct {
	hash uint64
	node N
}

func lessEntry[N Node](a, b entry[N]) bool {
	return a.hash < b.hash
}

// Ring implements consistent hashing with virtual nodes. It is safe for
// concurrent use: lookups share a read lock, membership changes take the
// write lock, so a reader never observes a partially applied change.
type Ring[N Node] struct {
	mu       sync.RWMutex
	replicas int
	entries  *btree.BTreeG[entry[N]]
}

var _ Cluster[Node] = (*Ring[Node])(nil)

// NewRing creates an empty ring placing replicas virtual nodes per node.
func NewRing[N Node](replicas int) *Ring[N] {
	if replicas <= 0 {
		replicas = DefaultReplicas
	}
	return &Ring[N]{
		replicas: replicas,
		entries:  btree.NewG[entry[N]](degree, lessEntry[N]),
	}
}

// Hash is the 64-bit hash used both to place virtual nodes and to look up
// keys.
func Hash(s string) uint64 {
	return xxhash.Sum64String(s)
}

// vnodeKey names the i-th virtual node of a node.
func vnodeKey(name string, i int) string {
	return fmt.Sprintf("%s_%d", name, i)
}

// Replicas returns the number of virtual nodes per node.
func (r *Ring[N]) Replicas() int {
	return r.replicas
}

// IsEmpty reports whether the ring has no entries.
func (r *Ring[N]) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries.Len() == 0
}

// Len returns the number of virtual node entries.
func (r *Ring[N]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries.Len()
}

// AddNode places the node's virtual nodes on the ring. Adding the same node
// again rewrites the same slots.
func (r *Ring[N]) AddNode(node N) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insert(r.entries, node)
}

func (r *Ring[N]) insert(t *btree.BTreeG[entry[N]], node N) {
	name := node.Name()
	for i := 0; i < r.replicas; i++ {
		t.ReplaceOrInsert(entry[N]{hash: Hash(vnodeKey(name, i)), node: node})
	}
}

// RemoveNode removes the node's virtual nodes. Removing a node that was never
// added is a no-op. A slot taken over by a different node through a hash
// collision is left alone.
func (r *Ring[N]) RemoveNode(node N) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := node.Name()
	for i := 0; i < r.replicas; i++ {
		pivot := entry[N]{hash: Hash(vnodeKey(name, i))}
		if e, ok := r.entries.Get(pivot); ok && e.node.Name() == name {
			r.entries.Delete(pivot)
		}
	}
}

// SetNodes rebuilds the ring with exactly the given nodes. The new entry set
// is built aside and swapped in, so readers see either the old or the new
// membership.
func (r *Ring[N]) SetNodes(nodes []N) {
	t := btree.NewG[entry[N]](degree, lessEntry[N])
	for _, node := range nodes {
		r.insert(t, node)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = t
}

// Get returns the node responsible for key: the owner of the first entry
// whose hash is >= Hash(key), wrapping to the smallest entry. It returns
// false iff the ring is empty.
func (r *Ring[N]) Get(key string) (N, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		found entry[N]
		ok    bool
	)
	r.entries.AscendGreaterOrEqual(entry[N]{hash: Hash(key)}, func(e entry[N]) bool {
		found, ok = e, true
		return false
	})
	if !ok {
		found, ok = r.entries.Min()
	}
	return found.node, ok
}

// Nodes returns every distinct node on the ring once, in order of first
// appearance scanning the ring in ascending hash order.
func (r *Ring[N]) Nodes() []N {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	nodes := make([]N, 0)
	r.entries.Ascend(func(e entry[N]) bool {
		name := e.node.Name()
		if !seen[name] {
			seen[name] = true
			nodes = append(nodes, e.node)
		}
		return true
	})
	return nodes
}
