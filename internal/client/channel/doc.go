// Package channel implements the persistent WebSocket session used for
// collaboration.
//
// A Session moves through Disconnected, Connecting, Connected and
// Reconnecting as described by Transition. On open it sends an auth
// message and starts a ping heartbeat. Closes with code 1000 or 1001 end
// the session; anything else schedules a reconnect with exponential
// backoff until MaxReconnectAttempts is reached.
//
// Incoming messages are dispatched by their "type" field. Presence
// messages go to presence handlers, pong messages are dropped, and every
// other type goes to the handlers subscribed for it.
package channel
