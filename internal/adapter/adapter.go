// Package adapter turns a chunked text stream into a resumable sequence
// of sse.Event values, framed on the >s sentinel.
package adapter

import (
	"strings"

	"github.com/omalloc/ssedeliver/api/defined/v1/sse"
	"github.com/omalloc/ssedeliver/internal/constants"
	"github.com/omalloc/ssedeliver/pkg/encoding"
)

// frame is the wire shape decoded from one JSON payload between sentinels.
type frame struct {
	ElementType  string `json:"elementType"`
	SessionLogID string `json:"sessionLogId"`
	Result       string `json:"result"`
	Extra        string `json:"extra"`
	IsHistory    bool   `json:"isHistory"`
}

// StreamAdapter accumulates raw chunks and emits complete frames as
// Events. It is resumable: a frame may straddle any number of Feed
// calls.
type StreamAdapter struct {
	acc   strings.Builder
	codec encoding.Codec
}

// New returns a StreamAdapter using the module's default codec. A host
// may swap codec via SetCodec (e.g. to CBOR) without touching framing.
func New() *StreamAdapter {
	return &StreamAdapter{codec: encoding.GetDefaultCodec()}
}

// SetCodec overrides the codec used to decode frame payloads.
func (a *StreamAdapter) SetCodec(c encoding.Codec) {
	a.codec = c
}

// Reset clears the accumulator, discarding any partial frame.
func (a *StreamAdapter) Reset() {
	a.acc.Reset()
}

// Feed appends chunk to the accumulator, strips per-line noise tokens,
// and returns every complete Event the accumulator now yields. A
// trailing partial frame is retained for the next Feed call.
func (a *StreamAdapter) Feed(chunk string) []sse.Event {
	for _, line := range splitLines(chunk) {
		line = stripLine(line)
		if line == "" {
			continue
		}
		a.acc.WriteString(line)
	}

	var events []sse.Event
	for {
		buf := a.acc.String()
		idx := strings.Index(buf, constants.FrameSentinel)
		if idx < 0 {
			break
		}

		payload := strings.TrimPrefix(buf[:idx], constants.LinePrefixData)
		ev := a.decode(payload)

		if !ev.Legal() {
			break
		}

		rest := buf[idx+len(constants.FrameSentinel):]
		a.acc.Reset()
		a.acc.WriteString(rest)
		events = append(events, ev)
	}

	return events
}

func (a *StreamAdapter) decode(payload string) sse.Event {
	var f frame
	if err := a.codec.Unmarshal([]byte(payload), &f); err != nil {
		return sse.Event{}
	}
	return sse.Event{
		SessionLogID: f.SessionLogID,
		ElementType:  f.ElementType,
		Result:       f.Result,
		Extra:        f.Extra,
		IsHistory:    f.IsHistory,
	}
}

func splitLines(chunk string) []string {
	chunk = strings.ReplaceAll(chunk, "\r\n", "\n")
	return strings.Split(chunk, "\n")
}

func stripLine(line string) string {
	line = strings.TrimRight(line, "\r")
	line = strings.TrimSpace(line)
	if line == constants.LineTokenEventStop {
		return ""
	}
	line = strings.TrimPrefix(line, constants.LinePrefixData)
	return strings.TrimSpace(line)
}
