package executor

import (
	"sort"
	"strings"

	aierrors "github.com/aiproto/aiproto/pkg/errors"
	"github.com/aiproto/aiproto/pkg/types"
)

// candidateAccumulator collects one candidate's content deltas and tool
// calls as the canonical event stream is folded into a single ChatResult.
type candidateAccumulator struct {
	index        int
	content      strings.Builder
	finishReason string
	toolOrder    []string
	toolCalls    map[string]*types.ToolCall
	toolArgs     map[string]*strings.Builder
}

func newCandidateAccumulator(index int) *candidateAccumulator {
	return &candidateAccumulator{
		index:     index,
		toolCalls: make(map[string]*types.ToolCall),
		toolArgs:  make(map[string]*strings.Builder),
	}
}

// foldEvents drains events to completion, folding the canonical stream
// produced for target into a single ChatResult. The channel is always
// fully drained, even when a StreamError is seen partway through, so the
// producing goroutine never blocks on a send this function stopped reading.
func foldEvents(target types.ProviderTarget, events <-chan types.CanonicalEvent) (*types.ChatResult, error) {
	candidates := map[int]*candidateAccumulator{}
	order := []int{}
	var usage *types.Usage
	var streamErr *aierrors.Classified

	get := func(idx int) *candidateAccumulator {
		acc, ok := candidates[idx]
		if !ok {
			acc = newCandidateAccumulator(idx)
			candidates[idx] = acc
			order = append(order, idx)
		}
		return acc
	}

	for ev := range events {
		switch ev.Kind {
		case types.EventPartialContentDelta:
			get(ev.CandidateIndex).content.WriteString(ev.ContentDelta)
		case types.EventToolCallStarted:
			if ev.ToolCall == nil {
				continue
			}
			acc := get(ev.CandidateIndex)
			acc.toolOrder = append(acc.toolOrder, ev.ToolCall.ID)
			acc.toolCalls[ev.ToolCall.ID] = &types.ToolCall{
				ID:   ev.ToolCall.ID,
				Type: "function",
				Function: types.ToolCallFunction{
					Name: ev.ToolCall.Name,
				},
			}
			acc.toolArgs[ev.ToolCall.ID] = &strings.Builder{}
		case types.EventPartialToolCall:
			if ev.ToolCall == nil {
				continue
			}
			acc := get(ev.CandidateIndex)
			if b, ok := acc.toolArgs[ev.ToolCall.ID]; ok {
				b.WriteString(ev.ToolCall.ArgumentsDelta)
			}
		case types.EventToolCallEnded:
			if ev.ToolCall == nil {
				continue
			}
			acc := get(ev.CandidateIndex)
			if tc, ok := acc.toolCalls[ev.ToolCall.ID]; ok {
				if ev.ToolCall.Arguments != "" {
					tc.Function.Arguments = ev.ToolCall.Arguments
				} else if b, ok := acc.toolArgs[ev.ToolCall.ID]; ok {
					tc.Function.Arguments = b.String()
				}
				if ev.ToolCall.Name != "" {
					tc.Function.Name = ev.ToolCall.Name
				}
			}
		case types.EventMetadata:
			acc := get(ev.CandidateIndex)
			if ev.FinishReason != "" {
				acc.finishReason = ev.FinishReason
			}
			if ev.Usage != nil {
				usage = ev.Usage
			}
		case types.EventStreamEnd:
			if ev.Usage != nil {
				usage = ev.Usage
			}
		case types.EventStreamError:
			streamErr = ev.Err
		}
	}

	if streamErr != nil {
		return nil, aierrors.New(*streamErr, target.ProviderID, target.ModelID, 0)
	}

	sort.Ints(order)
	choices := make([]types.Choice, 0, len(order))
	for _, idx := range order {
		acc := candidates[idx]
		msg := types.Message{
			Role:    "assistant",
			Content: acc.content.String(),
		}
		for _, id := range acc.toolOrder {
			if tc, ok := acc.toolCalls[id]; ok {
				if tc.Function.Arguments == "" {
					if b, ok := acc.toolArgs[id]; ok {
						tc.Function.Arguments = b.String()
					}
				}
				msg.ToolCalls = append(msg.ToolCalls, *tc)
			}
		}
		choices = append(choices, types.Choice{
			Index:        idx,
			Message:      msg,
			FinishReason: acc.finishReason,
		})
	}

	return &types.ChatResult{
		Model:    target.ModelID,
		Provider: target.ProviderID,
		Choices:  choices,
		Usage:    usage,
	}, nil
}
