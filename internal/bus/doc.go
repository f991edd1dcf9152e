// Package bus is the fleet's local publish/subscribe channel.
//
// Every service on a vehicle talks over the same broker: periodic health
// reports, on-demand update requests. Topics follow the MQTT convention
// ("luffy/<service>/health") even though the transport is a local Redis
// instance, so pattern matching is done client-side with Match rather
// than trusting the broker's glob semantics.
package bus
