// Package chat implements the streaming conversation loop of guided
// drafting sessions.
//
// A turn takes the user's message, streams the model reply fragment by
// fragment, and strips the in-band ready marker even when it arrives split
// across fragment boundaries. The exchange is committed to the session as a
// single atomic step once the stream completes, so an interrupted turn never
// leaves a half-written transcript behind.
package chat
