// Package relay implements the upstream half of an HTTP forward proxy.
//
// A relay operation is one-shot: Connect opens a connection to the upstream
// described by a Config, the caller then re-serializes the parsed client
// Request onto it with SendFirstLine, SendHeaders and SendBody (in that
// order), and finally hands the connection to a ResponseParser with
// ReadResponseInfo. The caller closes the Upstream when done.
//
// The relay performs blocking I/O on a single connection and holds no shared
// mutable state. Config and Request are only read, so one Config may be used
// by many concurrent relay operations. Deadlines are not applied here; a
// caller that wants them sets them on Conn().
package relay
