package types

// Websocket frames on /rooms/{code}/ws?player=<id>
//
// Server -> Client
// RoomSnapshot:
//   view:
//     version: number
//     room:
//       code: string
//       hostId: string
//       status: "waiting" | "in_progress"
//       players: { [id]: { id, name, avatar, isHost, ready, joinedAt } }
//       gameState:
//         phase: "lobby" | "role_reveal" | "night" | "morning" | "discussion" | "voting" | "result" | "transition"
//         round: number
//         roles: { [id]: role }
//         nightActions: { [id]: { role, target: string|null, timestamp } }
//         votes: { [id]: string } // player id or "SKIP"
//         jailed: string[]
//         eliminated: string[]
//         discussionReady: { [id]: boolean }
//         lastEliminated: string|null
//     outcome: "ongoing" | "good_wins" | "naughty_wins"
//     summary: { framed: string|null, protected: boolean } // morning only
//   reveal: { role, faction, phase, round, jailed, eliminated, verdict?, clue?, saved? } // own only
//
// Error:
//   error: string
//   code: string
//
// Client -> Server
// SetReady:            { ready: boolean }
// StartGame:           {}
// NightAction:         { target: string|null }
// ProceedToDiscussion: {}
// DiscussionReady:     {}
// Vote:                { target: string }
// Continue:            {}
// ResetToLobby:        {}
