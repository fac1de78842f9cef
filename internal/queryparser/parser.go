package queryparser

import (
	"bytes"
	"sync"
)

// NotFound is returned by HasKey when no record matches.
const NotFound = -1

// recordGrowth is the number of records added each time the record slice
// runs out of room.
const recordGrowth = 10

// pooledBufferSize is the initial capacity of buffers handed out by
// AcquireBuffer. Longer queries grow the buffer as usual.
const pooledBufferSize = 512

// Span is a window into the parser buffer.
type Span struct {
	Start int
	Len   int
}

// Present reports whether the span refers to supplied data.
// Only meaningful for value spans: a zero start is the "no value" sentinel.
func (s Span) Present() bool {
	return s.Start != 0
}

// Record is one key/value pair in appearance order.
type Record struct {
	Key   Span
	Value Span
}

// Parser holds the records of one query string.
type Parser struct {
	buf      []byte
	records  []Record
	owned    bool
	released bool
}

var bufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, pooledBufferSize)
		return &b
	},
}

// AcquireBuffer returns a pooled buffer holding a copy of query.
// Hand it to New with owned=true so Release returns it to the pool.
func AcquireBuffer(query string) []byte {
	bp, ok := bufferPool.Get().(*[]byte)
	if !ok {
		b := make([]byte, 0, pooledBufferSize)
		bp = &b
	}
	return append((*bp)[:0], query...)
}

// New parses buf in a single pass.
//
// Parameters:
//   - buf: Raw query bytes (without the leading '?'). Parsing stops at the
//     first NUL byte, matching null-terminated buffer semantics.
//   - owned: When true the parser takes the buffer over and recycles it on Release.
//
// Returns:
//   - *Parser: Parser with one record per '&'-separated segment
func New(buf []byte, owned bool) *Parser {
	if end := bytes.IndexByte(buf, 0); end >= 0 {
		buf = buf[:end]
	}

	p := &Parser{
		buf:   buf,
		owned: owned,
	}
	p.parse()
	return p
}

// NewString parses a query held in a string. The parser copies the string
// into a pooled buffer and owns it.
func NewString(query string) *Parser {
	return New(AcquireBuffer(query), true)
}

func (p *Parser) parse() {
	if len(p.buf) == 0 {
		return
	}

	keyStart := 0
	valueStart := 0
	inValue := false

	for i := 0; i <= len(p.buf); i++ {
		if i < len(p.buf) {
			switch p.buf[i] {
			case '=':
				if !inValue {
					inValue = true
					valueStart = i + 1
				}
				continue
			case '&':
			default:
				continue
			}
		}

		rec := Record{}
		if inValue {
			rec.Key = Span{Start: keyStart, Len: valueStart - 1 - keyStart}
			rec.Value = Span{Start: valueStart, Len: i - valueStart}
		} else {
			rec.Key = Span{Start: keyStart, Len: i - keyStart}
		}
		p.append(rec)

		keyStart = i + 1
		inValue = false
	}
}

func (p *Parser) append(rec Record) {
	if len(p.records) == cap(p.records) {
		grown := make([]Record, len(p.records), cap(p.records)+recordGrowth)
		copy(grown, p.records)
		p.records = grown
	}
	p.records = append(p.records, rec)
}

// Len returns the number of records.
func (p *Parser) Len() int {
	if p.released {
		return 0
	}
	return len(p.records)
}

// Records returns the parsed records in appearance order.
// The slice is shared with the parser and must not be modified.
func (p *Parser) Records() []Record {
	if p.released {
		return nil
	}
	return p.records
}

// HasKey returns the index of the first record whose key equals key,
// or NotFound.
func (p *Parser) HasKey(key string) int {
	if p.released {
		return NotFound
	}
	for i, rec := range p.records {
		if rec.Key.Len != len(key) {
			continue
		}
		if string(p.buf[rec.Key.Start:rec.Key.Start+rec.Key.Len]) == key {
			return i
		}
	}
	return NotFound
}

// Key returns the key bytes of a record. The slice aliases the parser buffer.
func (p *Parser) Key(record int) []byte {
	if !p.valid(record) {
		return nil
	}
	k := p.records[record].Key
	return p.buf[k.Start : k.Start+k.Len]
}

// Value returns the value bytes of a record and whether a value was supplied.
// The slice aliases the parser buffer.
func (p *Parser) Value(record int) ([]byte, bool) {
	if !p.valid(record) {
		return nil, false
	}
	v := p.records[record].Value
	if !v.Present() {
		return nil, false
	}
	return p.buf[v.Start : v.Start+v.Len], true
}

// ValueString is Value returning a string copy.
func (p *Parser) ValueString(record int) (string, bool) {
	v, ok := p.Value(record)
	if !ok {
		return "", false
	}
	return string(v), true
}

// ValueOf looks up key and returns its value bytes.
func (p *Parser) ValueOf(key string) ([]byte, bool) {
	return p.Value(p.HasKey(key))
}

// CopyValue copies the value of record into dst and NUL-terminates it within
// cap(dst). The value is truncated when it does not fit.
//
// Returns:
//   - int: Number of value bytes copied (excluding the terminator), 0 when
//     the record has no value or dst has no capacity
func (p *Parser) CopyValue(record int, dst []byte) int {
	dst = dst[:cap(dst)]
	if len(dst) == 0 {
		return 0
	}

	v, ok := p.Value(record)
	if !ok {
		dst[0] = 0
		return 0
	}

	n := copy(dst[:len(dst)-1], v)
	dst[n] = 0
	return n
}

// CopyValueOf looks up key and copies its value into dst like CopyValue.
func (p *Parser) CopyValueOf(key string, dst []byte) int {
	return p.CopyValue(p.HasKey(key), dst)
}

// Release drops the parser's records and, when the buffer is owned, returns
// it to the pool. Safe to call more than once.
func (p *Parser) Release() {
	if p.released {
		return
	}
	p.released = true
	p.records = nil

	if p.owned && p.buf != nil && cap(p.buf) <= 4*pooledBufferSize {
		b := p.buf[:0]
		bufferPool.Put(&b)
	}
	p.buf = nil
}

func (p *Parser) valid(record int) bool {
	return !p.released && record >= 0 && record < len(p.records)
}
