// Package storage provides the durable key-value store the daemon persists
// its state into, and the token store built on top of it.
//
// The KV interface mirrors an eventually-durable key-value collaborator:
// writes are expected to survive process restarts but are not transactional
// across keys. FileKV is the production implementation (a single JSON file
// under the user cache directory, written atomically); MemKV backs tests.
package storage
