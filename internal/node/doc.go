// Package node bootstraps a kvshard process: one storage owner per shard, the
// consistent-hash ring that places them, the router and its front ends.
package node
