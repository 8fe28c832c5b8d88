// Package main hosts the ReelRecon CLI entrypoint and command graph.
//
// The Cobra-based command tree starts backend jobs and optionally waits on
// them in-process, lists and mutates the reconciled asset library, builds
// combined cross-platform views, and talks to a running reelrecond watcher
// through its status API. Configuration resolution and logger setup live in
// commandContext so subcommands stay declarative.
//
// Add behaviour to the internal packages first and surface it here.
package main
