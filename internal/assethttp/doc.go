// Package assethttp serves static assets resolved through a
// fileprovider.Provider.
//
// The handler answers GET and HEAD only. File requests are stat-then-open
// through the provider; seekable content is served with range and
// conditional-request support, anything else as a single-shot copy.
// Trailing-slash paths render an optional directory listing. Every miss,
// malformed path included, is answered with the not-found page compiled
// into the binary, so the handler leaks nothing the provider would hide.
package assethttp
