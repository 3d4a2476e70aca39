package streampipe

import (
	"context"
	"io"

	"github.com/aiproto/aiproto/internal/manifest"
	"github.com/aiproto/aiproto/pkg/types"
)

// Options controls per-request pipeline behavior.
type Options struct {
	// FanOut requests per-candidate sub-streams when the manifest supports
	// it. Default false resolves to candidate 0 only.
	FanOut bool
	// Streaming is false for a single-shot JSON response body; the
	// pipeline then synthesizes one content delta plus a terminal
	// StreamEnd instead of decoding SSE/NDJSON framing.
	Streaming bool
}

// Pipeline wires Decode->Select->Accumulate->FanOut->EventMap into one
// per-request operator chain. A new Pipeline is built for every request;
// none of its state is safe to share across requests.
type Pipeline struct {
	manifest *manifest.ProtocolManifest
	decoder  Decoder
	mapper   EventMapper
	opts     Options
}

// New builds a Pipeline for one request against m, picking the decoder and
// event mapper the manifest's streaming config declares.
func New(m *manifest.ProtocolManifest, opts Options) *Pipeline {
	p := &Pipeline{manifest: m, opts: opts}

	decoder := manifest.DecoderSSE
	if m.Streaming != nil {
		decoder = m.Streaming.Decoder
	}

	switch decoder {
	case manifest.DecoderNDJSON:
		p.decoder = NDJSONDecoder{}
		p.mapper = GenericEventMapper{}
	case manifest.DecoderAnthropicSSE:
		p.decoder = AnthropicSSEDecoder{}
		p.mapper = NewAnthropicEventMapper()
	default:
		p.decoder = SSEDecoder{}
		p.mapper = GenericEventMapper{}
	}
	return p
}

// Run consumes body and sends canonical events to out in order, closing out
// when the body is exhausted, ctx is cancelled, or a terminal StreamError
// occurs. The caller owns out and must drain it to avoid blocking Run.
func (p *Pipeline) Run(ctx context.Context, body io.Reader, out chan<- types.CanonicalEvent) error {
	defer close(out)

	if !p.opts.Streaming {
		return p.runNonStreaming(body, out)
	}

	acc := NewAccumulator()
	seq := -1
	send := func(e types.CanonicalEvent) error {
		select {
		case out <- e:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := p.decoder.Decode(body, func(f Frame) error {
		sel := Select(p.manifest, f.Data)
		for _, cand := range FanOut(sel, p.opts.FanOut) {
			for _, ev := range p.mapper.Map(f, cand, acc, &seq) {
				if err := send(ev); err != nil {
					return err
				}
				if ev.Kind == types.EventStreamError {
					return errStreamTerminated
				}
			}
		}
		return nil
	})

	if err != nil && err != errStreamTerminated {
		c := classifyTransport(err)
		_ = send(types.CanonicalEvent{Kind: types.EventStreamError, Err: &c})
		return err
	}

	for _, ev := range acc.EndAll() {
		if sendErr := send(ev); sendErr != nil {
			return sendErr
		}
	}
	return send(types.CanonicalEvent{Kind: types.EventStreamEnd})
}

func (p *Pipeline) runNonStreaming(body io.Reader, out chan<- types.CanonicalEvent) error {
	data, err := io.ReadAll(body)
	if err != nil {
		c := classifyTransport(err)
		out <- types.CanonicalEvent{Kind: types.EventStreamError, Err: &c}
		return err
	}

	sel := Select(p.manifest, data)
	if sel.Content.Exists() {
		out <- types.CanonicalEvent{
			Kind:           types.EventPartialContentDelta,
			Seq:            0,
			CandidateIndex: DefaultCandidateIndex,
			ContentDelta:   sel.Content.String(),
		}
	}
	if sel.FinishReason.Exists() {
		out <- types.CanonicalEvent{
			Kind:           types.EventMetadata,
			CandidateIndex: DefaultCandidateIndex,
			FinishReason:   sel.FinishReason.String(),
		}
	}
	out <- types.CanonicalEvent{Kind: types.EventStreamEnd}
	return nil
}
