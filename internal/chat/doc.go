// ABOUTME: Package chat orchestrates conversations between owners and LLM providers
// ABOUTME: Persistence only happens after a provider call succeeds

// Package chat is the central orchestration layer. It validates input,
// enforces conversation ownership, rebuilds provider context from stored
// history, dispatches to the selected provider adapter, and persists the
// exchange. A provider failure leaves the store untouched.
package chat
