// Package rps runs multi-round rock-paper-scissors tournaments.
//
// A game is created by a host with a list of invited players and a gg
// score. Invited players join; every connected player who is not excluded
// throws once per round. When the last eligible throw arrives the round is
// resolved:
//
//   - every pair of throws is scored +1/-1 (special beats everything but
//     itself; rock beats scissors beats paper beats rock)
//   - if everybody shares the top score the round is a draw and replays
//   - if several share it, everyone else is excluded and the leaders replay
//   - a single leader wins the round, exclusions are lifted, and reaching
//     the gg score ends the game
//
// The Engine is a single goroutine that owns all games. Updates are pushed
// to the connected players of a game as rps frames:
//
//	{"update": {"game_id": "...", "event": {"type": "winner", "player": "..."}}}
//
// Operations on an unknown game are a caller error. Request/response calls
// return ErrGameNotFound; fire-and-forget calls report it on the caller's
// fault channel.
package rps
