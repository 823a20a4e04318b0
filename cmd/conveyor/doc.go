// Package main hosts the Conveyor CLI entrypoint and command graph.
//
// The Cobra-based command tree surfaces the pipeline's components: ingestion,
// claim and release, completion with handoff, lease administration, and queue
// inspection. It centralizes configuration resolution and store wiring so
// subcommands can focus on user experience instead of plumbing.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
