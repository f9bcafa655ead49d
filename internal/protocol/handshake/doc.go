// Package handshake establishes a per-connection session key and proves both
// ends can use it before any application data flows.
//
// # Flow
//
// Server:
//  1. Generate an ephemeral RSA-2048 keypair and send the PEM public key as a
//     plaintext frame.
//  2. Read the WrappedKeyMessage and unwrap the session key (RSA-OAEP). The
//     keypair is wiped immediately afterwards.
//  3. Send a TestMessage {TestMarker, 32 random fill bytes} sealed under the
//     session key.
//  4. Read the sealed TestResponse and check its marker and that its fill is
//     the original fill reversed.
//
// Client:
//  1. Read the public key.
//  2. Generate a session key, wrap it and send the WrappedKeyMessage.
//  3. Open the TestMessage and check its marker.
//  4. Send the sealed TestResponse with the fill reversed.
//
// Every read of a peer frame is bounded by Config.Timeout and by the
// context. Any failure, including a self-test mismatch on the server, is an
// *Error carrying the Step and an ErrKind; the caller closes the connection.
//
// When an AuthProvider is configured, ServerAuth and ClientAuth run a
// challenge/response exchange on the same framed stream before step 1.
//
// # Wire layout
//
// Structured payloads are version | type | fields..., each field prefixed
// with a big-endian uint16 length. The public key frame is raw PEM.
package handshake
