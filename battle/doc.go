// Package battle provides the referee core for robobattler matches.
//
// # Reading Guide
//
// Start with these files to understand the match kernel:
//   - bytecode.go: the wire codec shared with bots (Decode/Encode)
//   - world.go: World state, the registry of live and dead units
//   - action.go: the closed Action union and Resolve
//   - engine.go: the Mode state machine and the per-round loop
//
// # Architecture
//
// The battle package defines the Controller interface; implementations live
// in sub-packages:
//   - battle/transport/: FIFO pairs, child processes, websockets, in-memory queues
//   - battle/trace/: turn log recording, export and replay reading
//   - battle/store/: SQLite history of finished matches
//   - battle/bot/: a random-choice sample bot speaking the protocol
//
// The engine is single-threaded. Each live unit gets exactly one
// request/response exchange per round, in the order units were alive at
// the start of that round.
package battle
