// Package transport sends request frames to a Grenton CLU over UDP.
//
// The transport layer handles:
//   - AES-128-CBC encryption of every outbound frame and decryption of replies
//   - One UDP socket per request, closed on every exit path
//   - A weighted semaphore bounding the number of sockets in flight
//   - Reply timeouts and context cancellation
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│   req:<ip>:<id>:<payload>      │
//	├────────────────────────────────┤
//	│   AES-128-CBC + PKCS7          │
//	├────────────────────────────────┤
//	│           UDP                  │
//	└────────────────────────────────┘
//
// There is no retransmission. A request that expects a reply waits for one
// datagram on its own socket until the configured timeout expires.
package transport
