// Package realtime maintains the chat update channel over two transports.
//
// The socket transport is always preferred: whenever a realtime-dependent
// section is active the channel dials it, heartbeats it, and (re)subscribes
// to the active conversation. While the socket is down the one-way event
// stream transport activates independently and delivers the same snapshot
// payloads; it is torn down the moment the socket connects.
//
// Inbound traffic for the active conversation flows to the consumer's Sink.
// Traffic for any other conversation only invalidates that conversation's
// cache entry so a later switch revalidates. Malformed messages are skipped
// individually; one bad frame never closes the channel.
package realtime
