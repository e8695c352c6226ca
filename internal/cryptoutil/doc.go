// Package cryptoutil provides the cryptographic primitives behind bundle
// integrity checks.
//
// It supports:
//   - KMS-backed signature verification (ECDSA P-256/P-384, RSA-PSS with optional PKCS1v15 fallback)
//   - Constant-time hash comparison to prevent timing side-channels
//   - SHA-256 hashing utilities
package cryptoutil
