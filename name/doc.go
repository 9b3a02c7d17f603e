// Package name implements the hierarchical names used on the request/response
// network and the deterministic mapping from (node, sequence number) to the
// name of a published object.
//
// A Name is an ordered list of opaque components. Its URI form separates
// components with "/" and percent-escapes every byte outside the unreserved
// set, so any component (including one containing "/") round-trips.
//
// Names are values: every function in this package returns a fresh slice and
// never aliases its arguments.
package name
