// ABOUTME: Package store persists conversations, messages and exchange pairs
// ABOUTME: SQLite-backed with cascade deletion from conversation to its rows

// Package store provides persistence for conversations and their exchanges.
//
// A conversation owns its messages and message/response pairs: deleting the
// conversation cascades to both. Message order within a conversation is the
// created_at order and is the authoritative turn sequence.
package store
