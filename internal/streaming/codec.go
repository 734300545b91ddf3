package streaming

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

const (
	dataPrefix = "data:"
	idPrefix   = "id:"
)

// Encode writes e as a single "data: <json>" record followed by a blank line.
func Encode(w io.Writer, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if e.Seq > 0 {
		buf.WriteString("id: ")
		buf.WriteString(strconv.FormatUint(e.Seq, 10))
		buf.WriteByte('\n')
	}
	buf.WriteString("data: ")
	buf.Write(b)
	buf.WriteString("\n\n")
	_, err = w.Write(buf.Bytes())
	return err
}

// Decoder reads events from a data-prefixed stream. An id line sets the
// sequence of the record that follows it; other lines are skipped.
type Decoder struct {
	sc  *bufio.Scanner
	seq uint64
}

func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4<<20)
	return &Decoder{sc: sc}
}

// Next returns the next event or io.EOF when the stream is exhausted.
func (d *Decoder) Next() (Event, error) {
	for d.sc.Scan() {
		line := d.sc.Bytes()
		if bytes.HasPrefix(line, []byte(idPrefix)) {
			seq, err := strconv.ParseUint(string(bytes.TrimSpace(line[len(idPrefix):])), 10, 64)
			if err != nil {
				return Event{}, fmt.Errorf("decode event id: %w", err)
			}
			d.seq = seq
			continue
		}
		if !bytes.HasPrefix(line, []byte(dataPrefix)) {
			continue
		}
		payload := bytes.TrimSpace(line[len(dataPrefix):])
		if len(payload) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(payload, &e); err != nil {
			return Event{}, fmt.Errorf("decode event: %w", err)
		}
		e.Seq, d.seq = d.seq, 0
		return e, nil
	}
	if err := d.sc.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}

// DecodeAll drains r.
func DecodeAll(r io.Reader) ([]Event, error) {
	d := NewDecoder(r)
	var out []Event
	for {
		e, err := d.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
}
