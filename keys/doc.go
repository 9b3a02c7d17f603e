// Package keys provides node signing keys for published Data packets.
//
// API stability:
//
// Stable:
//   - Pure, deterministic primitives: node-seed derivation, key names and the
//     "<alg>:<base64>" public key encoding.
//
// Experimental:
//   - Filesystem-backed key storage (KeyStore). It is a local-first utility and
//     not part of the wire contract.
package keys
