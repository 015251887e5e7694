// Package wire implements the ztpipe adapter wire frame codec.
package wire
