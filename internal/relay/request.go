package relay

// HeaderField is a single request header as received from the client.
type HeaderField struct {
	Name  string
	Value string
}

// Request is a parsed client request.
//
// Header holds the remaining headers in client order. Host and
// Content-Length are carried by their derived fields rather than by Header,
// since SendHeaders writes those two itself.
type Request struct {
	Method string
	URI    string
	Proto  string
	Header []HeaderField

	// Host is the request's Host header value, possibly empty.
	Host string
	// ContentLength is the body length; 0 when there is no body.
	ContentLength int64
	// KeepAlive reports whether the client asked to keep its connection
	// open. It does not affect what is written upstream.
	KeepAlive bool
}
