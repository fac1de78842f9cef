// Package queryparser splits a raw URL query string into key/value records
// without copying the key or value bytes.
//
// Each record stores two spans (start offset and length) into the buffer the
// parser was built from. A value span whose start is 0 means "no value was
// supplied": offset 0 can only ever be the first byte of the first key, so it
// is never a valid value offset.
//
// # Usage
//
//	p := queryparser.New([]byte("id=3&value=21.5"), false)
//	defer p.Release()
//
//	if idx := p.HasKey("value"); idx != queryparser.NotFound {
//	    v, _ := p.ValueString(idx) // "21.5"
//	}
//
// # Ownership
//
// A parser built with owned=true takes the buffer over and hands it back to
// the shared buffer pool on Release. Buffers passed with owned=false stay
// with the caller and are never recycled.
//
// # Thread Safety
//
// A Parser is not safe for concurrent use. It is built and consumed by a
// single worker for the lifetime of one request.
package queryparser
