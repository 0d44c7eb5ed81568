package recordstream

// Framer turns a sequence of raw byte chunks, as delivered by a chunked HTTP
// response, into a sequence of newline-delimited records. It preserves a
// carry buffer across chunk boundaries so that a record split across two
// chunks is still emitted whole.
//
// A Framer is single-owner: it must only be driven from one goroutine at a
// time (the subscriber loop's I/O goroutine), and its zero value is ready
// to use.
type Framer struct {
	carry []byte
}

// Reset clears the carry buffer. Callers must Reset the framer whenever the
// underlying transport reconnects — a new chunked response starts a fresh
// record boundary, and any partial record buffered from the old connection
// must be discarded, not stitched onto the new one.
func (f *Framer) Reset() {
	f.carry = f.carry[:0]
}

func isSep(b byte) bool {
	return b == '\n' || b == '\r'
}

// Feed splits chunk into records and invokes emit once per record, in
// order. Every record passed to emit is free of '\n' and '\r'. Feed never
// fails; a malformed record is a decoder concern, not a framing one.
func (f *Framer) Feed(chunk []byte, emit func(record []byte)) {
	pos := 0
	n := len(chunk)

	if len(f.carry) > 0 {
		end := 0
		for end < n && !isSep(chunk[end]) {
			end++
		}
		if end == n {
			f.carry = append(f.carry, chunk...)
			return
		}
		rec := append(f.carry, chunk[:end]...)
		emit(rec)
		f.carry = nil
		pos = end
	}

	for {
		for pos < n && isSep(chunk[pos]) {
			pos++
		}
		end := pos + 1
		for end < n && !isSep(chunk[end]) {
			end++
		}
		if end >= n {
			break
		}
		emit(chunk[pos:end])
		pos = end + 1
	}

	if pos < n {
		f.carry = append(f.carry[:0:0], chunk[pos:]...)
	} else {
		f.carry = f.carry[:0]
	}
}
