package streaming

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventWireShapes(t *testing.T) {
	cases := []struct {
		name string
		in   Event
		want string
	}{
		{"step", StepEvent(2, 5, "Verifying the initial response"), `{"type":"step","step":2,"total":5,"description":"Verifying the initial response"}`},
		{"message", MessageEvent("m1", "Paris.", "Initial response", ""), `{"type":"message","id":"m1","content":"Paris.","step":"Initial response"}`},
		{"message with results", MessageEvent("m3", "[[q]]", "Web search", "Search results for query 'q':\n\nx"), `{"type":"message","id":"m3","content":"[[q]]","step":"Web search","searchResults":"Search results for query 'q':\n\nx"}`},
		{"empty content kept", MessageEvent("m4", "", "Final response", ""), `{"type":"message","id":"m4","content":"","step":"Final response"}`},
		{"error", ErrorEvent("completion endpoint returned status 429", "Verified response"), `{"type":"error","step":"Verified response","message":"completion endpoint returned status 429"}`},
		{"error without stage", ErrorEvent("boom", ""), `{"type":"error","message":"boom"}`},
		{"end", EndEvent(), `{"type":"end"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := json.Marshal(tc.in)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(b))
			assert.NoError(t, ValidateEventDocument(b))

			var back Event
			require.NoError(t, json.Unmarshal(b, &back))
			assert.Equal(t, tc.in, back)
		})
	}
}

func TestMarshalUnknownType(t *testing.T) {
	_, err := json.Marshal(Event{Type: "bogus"})
	assert.Error(t, err)
}

func TestEncodeDecodeStream(t *testing.T) {
	var buf bytes.Buffer
	events := []Event{
		StepEvent(1, 5, "Generating an initial response"),
		MessageEvent("m1", "line one\nline two", "Initial response", ""),
		EndEvent(),
	}
	for _, e := range events {
		require.NoError(t, Encode(&buf, e))
	}
	assert.True(t, strings.HasPrefix(buf.String(), "data: {"))
	assert.Equal(t, 3, strings.Count(buf.String(), "\n\n"))

	got, err := DecodeAll(&buf)
	require.NoError(t, err)
	assert.Equal(t, events, got)
}

func TestEncodeWithSeqWritesID(t *testing.T) {
	var buf bytes.Buffer
	e := EndEvent()
	e.Seq = 7
	require.NoError(t, Encode(&buf, e))
	assert.Equal(t, "id: 7\ndata: {\"type\":\"end\"}\n\n", buf.String())
}

func TestDecodeKeepsSeqFromIDLine(t *testing.T) {
	var buf bytes.Buffer
	first := StepEvent(1, 5, "first")
	first.Seq = 9
	end := EndEvent()
	end.Seq = 10
	require.NoError(t, Encode(&buf, first))
	require.NoError(t, Encode(&buf, MessageEvent("m1", "Paris.", "Initial response", "")))
	require.NoError(t, Encode(&buf, end))

	got, err := DecodeAll(&buf)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(9), got[0].Seq)
	assert.Equal(t, uint64(0), got[1].Seq)
	assert.Equal(t, uint64(10), got[2].Seq)

	_, err = DecodeAll(strings.NewReader("id: x\ndata: {\"type\":\"end\"}\n\n"))
	assert.Error(t, err)
}

func TestDecoderSkipsNoise(t *testing.T) {
	in := ": keepalive\n\nid: 3\ndata: {\"type\":\"end\"}\n\ndata:\n\n"
	got, err := DecodeAll(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, TypeEnd, got[0].Type)

	_, err = DecodeAll(strings.NewReader("data: {not json}\n\n"))
	assert.Error(t, err)
}

func TestMultiAttemptsEverySink(t *testing.T) {
	var seen []string
	failing := SinkFunc(func(context.Context, Event) error { return errors.New("closed") })
	recording := SinkFunc(func(_ context.Context, e Event) error {
		seen = append(seen, string(e.Type))
		return nil
	})
	err := Multi(failing, nil, recording).Emit(context.Background(), EndEvent())
	assert.EqualError(t, err, "closed")
	assert.Equal(t, []string{"end"}, seen)
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriterSink(&buf)
	require.NoError(t, s.Emit(context.Background(), StepEvent(1, 5, "d")))
	assert.Equal(t, "data: {\"type\":\"step\",\"step\":1,\"total\":5,\"description\":\"d\"}\n\n", buf.String())
}
