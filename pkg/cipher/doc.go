// Package cipher implements the datagram encryption used by the CLU protocol.
//
// Every datagram exchanged with the device, in both directions, is encrypted
// with AES-128 in CBC mode. Plaintext is padded to the block size with PKCS#7
// before encryption and the padding is stripped again after decryption.
//
// The key and initialization vector are fixed per device and are usually
// distributed as base64 text in the device configuration export. Both must
// be exactly 16 bytes.
//
// # Concurrency
//
// A Cipher holds only the immutable key schedule. Every call to Encrypt or
// Decrypt creates its own CBC mode instance, so a single Cipher can be shared
// by the request transport and the subscription receiver at the same time.
package cipher
