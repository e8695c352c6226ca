// Package bundle syncs the active asset tree from signed release bundles.
//
// A release is a .tar.gz of the asset tree plus a manifest.json, published
// to S3 under its own SHA256 hash, with a detached KMS signature sidecar.
// An SSM parameter names the hash that should be live. The Watcher polls
// that parameter, and when it changes the Loader downloads the bundle,
// pins it to the hash, verifies the sidecar signature, and extracts it to
// a staging directory. After validation the staged tree is renamed over
// the active root, so serving flips between complete trees and a bad
// bundle never replaces a good one.
//
// State tracks the installed release for response headers and the info API.
package bundle
