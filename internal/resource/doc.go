// Package resource bounds the IO a matching run is allowed to perform:
// how many blobs may be read at once and how many bytes per second may be
// pulled from a (typically remote) blob store.
package resource
