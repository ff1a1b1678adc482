// Package utm implements the Universal Type Model: the source-agnostic
// value and type algebra that every source converter produces and every
// target writer consumes. Nothing in this package talks to a database;
// it is the pure data model that the rest of the pipeline is built around.
package utm
