package engine

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/omalloc/ssedeliver/internal/constants"
	"github.com/omalloc/ssedeliver/pkg/encoding"
)

// recordedFrame is the shape NewRecordingProvider expects one recorded
// event to unmarshal into.
type recordedFrame struct {
	SessionLogID string `json:"sessionLogId"`
	ElementType  string `json:"elementType"`
	Result       string `json:"result"`
	Extra        string `json:"extra"`
	IsHistory    bool   `json:"isHistory"`
}

// NewRecordingProvider returns an OfflineProvider that replays a fixed
// set of recorded events as a synthetic SSE byte stream. recording is
// decoded with codec — e.g. pkg/encoding/cobr.CborCodec{} for a
// compact on-disk fixture format — but codec only governs how the
// fixture itself is stored; every frame is always re-emitted in the
// engine's normal textual `data:{...}>s` wire framing, since that
// framing is line-oriented and a binary codec's own bytes would not
// survive it unmodified.
func NewRecordingProvider(codec encoding.Codec, recording []byte) (OfflineProvider, error) {
	var frames []recordedFrame
	if err := codec.Unmarshal(recording, &frames); err != nil {
		return nil, fmt.Errorf("engine: decode recording with codec %q: %w", codec.Name(), err)
	}

	var wire strings.Builder
	for _, f := range frames {
		payload, err := encoding.GetDefaultCodec().Marshal(f)
		if err != nil {
			return nil, fmt.Errorf("engine: re-encode recorded frame: %w", err)
		}
		wire.WriteString(constants.LinePrefixData)
		wire.Write(payload)
		wire.WriteString(constants.FrameSentinel)
	}

	body := wire.String()
	return OfflineProviderFunc(func(context.Context, string) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(body)), nil
	}), nil
}

// RegisterRecordings decodes every recording concurrently with codec
// and registers each as an offline provider under its map key, useful
// when a host preloads a batch of fixtures at startup. It returns the
// first decode error, if any, after every recording has been attempted.
func (e *Engine) RegisterRecordings(codec encoding.Codec, recordings map[string][]byte) error {
	var g errgroup.Group
	for name, data := range recordings {
		g.Go(func() error {
			provider, err := NewRecordingProvider(codec, data)
			if err != nil {
				return fmt.Errorf("recording %q: %w", name, err)
			}
			e.RegisterOfflineProvider(name, provider)
			return nil
		})
	}
	return g.Wait()
}
