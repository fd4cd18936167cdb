// ABOUTME: Package provider dispatches turn sequences to LLM backends
// ABOUTME: One adapter per backend family behind a uniform Generate contract

// Package provider implements the uniform adapter layer over the supported
// LLM backends.
//
// Each backend family gets one Adapter implementation that maps the common
// turn sequence onto that backend's request shape and folds its response,
// atomic or streamed, back into plain text. Backend failures never escape
// as raw errors; they are wrapped into *Error at the adapter boundary.
// Adapters are selected through a label Registry built once at startup.
package provider
