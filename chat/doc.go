// Package chat connects the bot to its IRC network and keeps per-channel transcripts.
//
// Client owns the socket and the RFC 1459 registration (PASS, NICK, USER, then the 001 welcome)
// and exposes the four actions the rest of the bot needs: Say, Join, Depart and RequestNames.
// Server lines are decoded with github.com/gempir/go-twitch-irc's ParseMessage; the sender is
// always taken from the nick in the line prefix. Inbound traffic is delivered through Handlers
// callbacks on the client's read goroutine, so callers hand the work to their event loop rather
// than process it inline.
//
// RequestNames sends NAMES; the 353 replies are collected until 366 ends the list and then
// delivered through Handlers.OnNames. Channel names carry a leading '#' everywhere.
//
// Supervise keeps a Client connected, retrying with a fixed delay until its context ends.
package chat
