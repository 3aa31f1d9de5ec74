// Package ring implements a consistent hashing ring with virtual nodes.
// It maps keys to physical nodes and supports adding and removing nodes at
// runtime. Keys owned by a removed node are not migrated.
package ring
