package types

// Relay wire protocol (JSON text frames over /ws)
//
// Client -> Server
// join:
//   type: "join"
//   sessionId: string
//   -> server replies with the session's cached update, if any, then
//      forwards every later update for that session
//
// update (sent by the host):
//   type: "update"
//   sessionId: string
//   color: "#rrggbb"            // optional
//   participants: string[]|null // null = unchanged, [] = empty cast
//   epoch: number               // start time (unix ns) of the host instance, 0 = none
//   version: number             // counts changes within one epoch
//   -> ordered on (epoch, version); both 0 = unversioned, always accepted
//
// Server -> Client
// update:
//   type: "update"
//   sessionId: string
//   color: "#rrggbb"
//   participants: string[]      // ordered cast, index = slot
//   epoch: number
//   version: number
//
// error:
//   type: "error"
//   error: string               // "bad json" | "unknown type" | stale / missing session
//
// HTTP
// GET /sessions/{sessionId} -> 200 {sessionId, color, participants, epoch, version} | 404
// GET /healthz             -> 200
