// Package fileprovider defines the lookup capability assetgate serves from:
// point-in-time file metadata, directory listings, and change tokens over a
// named virtual filesystem.
//
// Three implementations compose into the serving path. Bundled wraps the
// asset tree compiled into the binary, Physical reads a mutable directory on
// disk, and Restricted gates another provider behind a path prefix while
// letting an optional override provider shadow individual files.
//
// Lookups never fail. Absence is reported through not-found values so the
// HTTP layer treats every path uniformly; errors surface only from
// constructors and from opening file content.
package fileprovider
