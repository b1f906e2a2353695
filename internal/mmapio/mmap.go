// Package mmapio memory-maps a file read-only for the lifetime of a Reader.
package mmapio
