// Package server hosts the local Fiber HTTP service that exposes the
// terminology registry to other processes on the same machine: state
// snapshots, synchronous lookups by id or catalog name, and deferred loads.
// It only depends on the narrow Terminologies interface so tests can inject
// fakes; the process-wide registry is built in main and passed in.
package server
