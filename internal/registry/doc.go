// Package registry is the process-wide table of loaded terminologies. It ties
// the disk cache and the parser together and guarantees that at most one load
// per resource id runs at any time: every caller that asks for an id while a
// load is in flight waits on that load's completion signal and then observes
// the same recorded outcome.
//
// A Registry is created once at process start and injected into its callers;
// it has no Close, its lifetime is the process's.
package registry
