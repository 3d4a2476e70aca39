package streampipe

import (
	"errors"

	aierrors "github.com/aiproto/aiproto/pkg/errors"
)

// errStreamTerminated is a sentinel the decode callback returns to unwind
// out of Decoder.Decode once the accumulator has already emitted a
// terminal StreamError, so the body read stops without a second error
// being synthesized around the same condition.
var errStreamTerminated = errors.New("streampipe: stream terminated by stream error event")

func classifyTransport(err error) aierrors.Classified {
	return aierrors.Classify(aierrors.ClassifyInput{TransportErr: err})
}
