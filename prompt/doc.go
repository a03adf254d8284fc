// Package prompt holds the conversation templates and prompt scaffolds that
// drive guided drafting sessions.
//
// A Template bundles everything the engine needs for one kind of
// presentation: the greeting that opens a guided session, the prompts that
// steer the model during conversation turns and one-shot generation, the
// information the model should gather before drafting, and the scaffold for
// outline generation. The Registry keeps templates by key and seeds the
// built-in ones.
package prompt
