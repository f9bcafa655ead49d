// Package framing splits a byte stream into discrete messages.
//
// Every frame on the wire is the payload followed by the six-byte Separator
// "<?!!?>". Payloads are structured binary (handshake records or AEAD
// envelopes), so a separator occurring inside a payload is not escaped.
//
// Reader scans with bufio.Reader.ReadSlice, which gives up once its buffer
// fills without a match (bufio.ErrBufferFull). Larger frames are then
// accumulated chunk by chunk and the tail of the accumulated bytes is checked
// for the separator, so a separator straddling two chunks is still found.
//
// End of input before a separator is reported as ErrStreamClosed: a
// disconnect, not a protocol error. An empty payload is a valid frame.
package framing
