// Package cve implements a reference Confidential Value Engine.
//
// Overview:
//   - Confidential integers are stored as exponential ElGamal ciphertexts over the
//     BLS12-377 G1 group and referenced only through opaque 32-byte handles
//   - Add and Sub are homomorphic and always yield a fresh handle; inputs are untouched
//   - Every handle carries a capability table row: the contracts allowed to compute on it
//     and the principals allowed to decrypt it. Rows never propagate to derived handles
//   - Handles produced during a call are transiently usable by the producing contract until
//     Settle; anything that must outlive the call needs an explicit GrantContract
//   - Decryption is asynchronous (RequestDecryption) and recovers the plaintext with a
//     bounded baby-step/giant-step search
//   - Client-side inputs (EncryptInput) carry a Fiat-Shamir proof of knowledge of the
//     plaintext and randomness, bound to the target contract and the submitting principal
//
// Usage:
//   - Create an Engine with New, obtain a contract-scoped view with Engine.Contract
//   - Use the view for Encrypt, Add, Sub, GrantContract, GrantUser, FromInput and Settle
//   - Use Engine.Decrypt or Engine.RequestDecryption as an authorized principal
//
// WARNING: the engine holds the decryption key in process. It stands in for an external
// key-management network and is meant for tests, simulations and local runs.
package cve
