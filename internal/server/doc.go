// Package server implements the MiniCanvas realtime relay: a WebSocket
// broker that authenticates clients with a JWT handshake token, tracks
// per-connection room subscriptions, persists published drawing and chat
// events, and fans each event out to the current members of its room.
//
// The implementation is organized into specialized files for configuration,
// token verification, hub management, clients, routing, and HTTP handlers
// to keep the codebase maintainable and testable as the project grows.
package server
