package cancel

import (
	"github.com/aiproto/aiproto/pkg/errors"
	"github.com/aiproto/aiproto/pkg/types"
)

// CancellableStream wraps a canonical event channel so that, whatever stage
// of the pipeline is cancelled, the consumer's last delivered event is
// always a stream_error with kind cancelled — never a channel that simply
// stops producing.
type CancellableStream struct {
	token    *Token
	events   <-chan types.CanonicalEvent
	seq      int
	finished bool
}

// NewCancellableStream wraps events, observing token for cancellation.
func NewCancellableStream(token *Token, events <-chan types.CanonicalEvent) *CancellableStream {
	return &CancellableStream{token: token, events: events}
}

// Next returns the next event, or a synthesized terminal stream_error event
// (kind cancelled) the first time the token is observed cancelled, and
// false once the terminal event or channel close has already been
// delivered.
func (s *CancellableStream) Next() (types.CanonicalEvent, bool) {
	if s.finished {
		return types.CanonicalEvent{}, false
	}

	select {
	case <-s.token.Context().Done():
		s.finished = true
		return s.cancelledEvent(), true
	default:
	}

	select {
	case event, ok := <-s.events:
		if !ok {
			s.finished = true
			return types.CanonicalEvent{}, false
		}
		s.seq = event.Seq
		if event.IsTerminal() {
			s.finished = true
		}
		return event, true
	case <-s.token.Context().Done():
		s.finished = true
		return s.cancelledEvent(), true
	}
}

func (s *CancellableStream) cancelledEvent() types.CanonicalEvent {
	s.seq++
	return types.CanonicalEvent{
		Kind: types.EventStreamError,
		Seq:  s.seq,
		Err:  &errors.Classified{Kind: errors.KindCancelled, Message: "request cancelled"},
	}
}
