// Package storage provides the key-value backend a shard owner applies its
// commands to. Backends are not synchronized: each one is exclusively owned
// by a single owner loop, which is the only serialization point for its data.
package storage
