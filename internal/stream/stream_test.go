// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/kbchat/internal/model"
)

// collect drains d, recording events and parse errors in order.
func collect(t *testing.T, d *Decoder) ([]Event, []error) {
	t.Helper()
	var events []Event
	var errs []error
	for {
		ev, err := d.Next()
		if errors.Is(err, io.EOF) {
			return events, errs
		}
		if err != nil {
			var mal *MalformedLineError
			var unk *UnknownEventError
			if !errors.As(err, &mal) && !errors.As(err, &unk) {
				t.Fatalf("unexpected reader error: %v", err)
			}
			errs = append(errs, err)
			continue
		}
		events = append(events, ev)
	}
}

func TestDecoder_AllVariants(t *testing.T) {
	body := strings.Join([]string{
		`{"type":"metadata","data":{"file_metadata":[{"file_id":1,"file_name":"a.pdf"}],"message_id":"42"}}`,
		`{"type":"chunk","data":{"content":"Hel"}}`,
		`{"type":"chunk","data":{"content":"lo","message_id":43}}`,
		`{"type":"complete","data":{"user_message_id":"41","assistant_message_id":43}}`,
		`{"type":"error","message":"boom","data":{"message":"ignored"}}`,
	}, "\n") + "\n"

	events, errs := collect(t, NewDecoder(strings.NewReader(body)))
	require.Empty(t, errs)
	require.Len(t, events, 5)

	meta := events[0].(*MetadataEvent)
	assert.Equal(t, "42", meta.MessageID)
	require.Len(t, meta.Files, 1)
	assert.Equal(t, model.FlexID("1"), meta.Files[0].FileID)

	assert.Equal(t, &ChunkEvent{Content: "Hel"}, events[1])
	assert.Equal(t, &ChunkEvent{Content: "lo", MessageID: "43"}, events[2])

	done := events[3].(*CompleteEvent)
	assert.True(t, done.HasIDs())
	assert.Equal(t, "41", done.UserMessageID)
	assert.Equal(t, "43", done.AssistantMessageID)

	assert.Equal(t, &ErrorEvent{Message: "boom"}, events[4])
}

func TestDecoder_ErrorMessageFallsBackToData(t *testing.T) {
	ev, err := Parse([]byte(`{"type":"error","data":{"message":"quota exceeded"}}`))
	require.NoError(t, err)
	assert.Equal(t, "quota exceeded", ev.(*ErrorEvent).Message)

	ev, err = Parse([]byte(`{"type":"error"}`))
	require.NoError(t, err)
	assert.Empty(t, ev.(*ErrorEvent).Message)
}

func TestDecoder_LinesSpanReads(t *testing.T) {
	body := `{"type":"chunk","data":{"content":"one"}}` + "\n" + `{"type":"chunk","data":{"content":"two"}}` + "\n"
	events, errs := collect(t, NewDecoder(iotest.OneByteReader(strings.NewReader(body))))
	require.Empty(t, errs)
	require.Len(t, events, 2)
	assert.Equal(t, "two", events[1].(*ChunkEvent).Content)
}

func TestDecoder_FinalLineWithoutNewline(t *testing.T) {
	body := `{"type":"chunk","data":{"content":"a"}}` + "\n" + `{"type":"complete","data":{"user_message_id":"1","assistant_message_id":"2"}}`
	events, errs := collect(t, NewDecoder(strings.NewReader(body)))
	require.Empty(t, errs)
	require.Len(t, events, 2)
	assert.Equal(t, TypeComplete, events[1].Type())
}

func TestDecoder_SkipsBlankLines(t *testing.T) {
	body := "\n\r\n   \n" + `{"type":"chunk","data":{"content":"x"}}` + "\r\n\n"
	events, errs := collect(t, NewDecoder(strings.NewReader(body)))
	require.Empty(t, errs)
	require.Len(t, events, 1)
}

func TestDecoder_MalformedAndUnknownDoNotStopReading(t *testing.T) {
	body := strings.Join([]string{
		`{"type":"chunk","data":{"content":"a"}}`,
		`{not json`,
		`{"type":"heartbeat","data":{}}`,
		`{"data":{}}`,
		`{"type":"chunk","data":"not an object"}`,
		`{"type":"chunk","data":{"content":"b"}}`,
	}, "\n")

	events, errs := collect(t, NewDecoder(strings.NewReader(body)))
	require.Len(t, events, 2)
	assert.Equal(t, "b", events[1].(*ChunkEvent).Content)

	require.Len(t, errs, 4)
	var mal *MalformedLineError
	var unk *UnknownEventError
	assert.True(t, errors.As(errs[0], &mal))
	assert.Equal(t, "{not json", mal.Line)
	require.True(t, errors.As(errs[1], &unk))
	assert.Equal(t, "heartbeat", unk.Type)
	assert.True(t, errors.As(errs[2], &unk))
	assert.True(t, errors.As(errs[3], &mal))
}

func TestParse_NonObjectAndMissingDataAreMalformed(t *testing.T) {
	for _, line := range []string{
		`null`,
		`[1,2]`,
		`"chunk"`,
		`42`,
		`{"type":"chunk"}`,
		`{"type":"metadata","data":null}`,
		`{"type":"complete"}`,
	} {
		_, err := Parse([]byte(line))
		var mal *MalformedLineError
		assert.True(t, errors.As(err, &mal), "line %s", line)
	}

	// Error events carry their text at the top level.
	ev, err := Parse([]byte(`{"type":"error","message":"boom"}`))
	require.NoError(t, err)
	assert.Equal(t, "boom", ev.(*ErrorEvent).Message)
}

func TestDecoder_OverlongLineIsMalformed(t *testing.T) {
	huge := `{"type":"chunk","data":{"content":"` + strings.Repeat("x", MaxLineSize) + `"}}`
	body := huge + "\n" + `{"type":"chunk","data":{"content":"after"}}` + "\n"

	d := NewDecoder(strings.NewReader(body))
	_, err := d.Next()
	var mal *MalformedLineError
	require.True(t, errors.As(err, &mal))
	assert.LessOrEqual(t, len(mal.Line), MaxLineSize)

	ev, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, "after", ev.(*ChunkEvent).Content)
	assert.Equal(t, 2, d.Lines())
}

func TestDecoder_ReaderErrorSurfaces(t *testing.T) {
	failing := io.MultiReader(
		strings.NewReader(`{"type":"chunk","data":{"content":"a"}}`+"\n"),
		iotest.ErrReader(errors.New("connection reset")),
	)
	d := NewDecoder(failing)

	_, err := d.Next()
	require.NoError(t, err)
	_, err = d.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.False(t, errors.Is(err, io.EOF))
}

func TestMarshalParsesBack(t *testing.T) {
	events := []Event{
		&ChunkEvent{Content: "hi\nthere", MessageID: "9"},
		&MetadataEvent{Files: []model.FileMetadata{{FileID: "3", FileName: "x.md"}}},
		&CompleteEvent{UserMessageID: "1", AssistantMessageID: "2"},
		&ErrorEvent{Message: "nope"},
	}
	var sb strings.Builder
	for _, ev := range events {
		line, err := Marshal(ev)
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(string(line), "\n"))
		assert.Equal(t, 1, strings.Count(string(line), "\n"))
		sb.Write(line)
	}

	got, errs := collect(t, NewDecoder(strings.NewReader(sb.String())))
	require.Empty(t, errs)
	assert.Equal(t, events, got)
}
