package reconstructor

import (
	"context"
	"errors"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/itinerary-cli/internal/resilience"
	"github.com/sells-group/itinerary-cli/pkg/anthropic"
)

const systemPrompt = `You reconstruct travel itineraries from raw text (emails, booking confirmations, notes).

Reply with exactly one JSON object and nothing else. Two shapes are allowed.

1. {"status":"OK","result":{...}} where result has:
   tripTitle, executiveSummary, destinationSummary,
   dateRange {startLocalDate, endLocalDate, timezone},
   days [{dayIndex, label, localDate, items [item]}],
   risks [{severity: low|medium|high, title, message, itemIds}],
   assumptions [{message, relatedItemIds}],
   missingInfo [{prompt, relatedItemIds}],
   sourceStats {inputCharCount, recognizedItemCount, inferredItemCount}.

   An item has: kind (FLIGHT, LODGING, MEETING, MEAL, TRANSPORT, ACTIVITY, NOTE, OTHER),
   title, start and end {localDate YYYY-MM-DD, localTime HH:MM, timezone IANA, iso},
   locationText, isInferred, confidence 0..1, sourceSnippet, and one of
   flight {airlineName, airlineCode, flightNumber, origin, destination, pnr},
   lodging {name, address, confirmationNumber},
   meeting {organizer, locationName, videoLink, attendees},
   meal {venue, mealType, reservationName, confirmationNumber}.
   Set intent on every item: ADD for something new, UPDATE when it changes an
   existing item, CANCEL when it cancels one, REPLACE when it supersedes one,
   UNKNOWN when the text changes something but it is unclear what.
   When an item is an existing item, copy that item's fingerprint.
   Use null for anything the text does not say. Never invent confirmation numbers.

2. {"status":"NEEDS_CLARIFICATION","pendingActionId":"...","intentType":"UPDATE|CANCEL|REPLACE|UNKNOWN",
   "candidates":[{"itemId":"..."}],"update":item}
   when the text changes an existing item and more than one existing item fits.

Existing items are listed in the request under "existing". Dates are relative to
the client's timezone and current time.`

// AnthropicService reconstructs itineraries with Claude.
type AnthropicService struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicService creates an AnthropicService.
func NewAnthropicService(client anthropic.Client, model string, maxTokens int) *AnthropicService {
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &AnthropicService{client: client, model: model, maxTokens: int64(maxTokens)}
}

// Reconstruct sends the raw text and existing item references to Claude and
// validates the JSON reply.
func (s *AnthropicService) Reconstruct(ctx context.Context, req Request) (*Response, error) {
	payload, err := encodeRequest(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	msg, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(systemPrompt, "5m"),
		Messages:  []anthropic.Message{{Role: "user", Content: string(payload)}},
	})
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
			err = resilience.NewTransientError(err, apiErr.StatusCode)
		}
		return nil, eris.Wrap(err, "reconstructor: anthropic")
	}

	zap.L().Debug("reconstructor: anthropic reply",
		zap.String("model", msg.Model),
		zap.String("stop_reason", msg.StopReason),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)),
	)

	if msg.StopReason == "max_tokens" {
		return nil, eris.Wrap(ErrMalformed, "reply truncated at max_tokens")
	}

	resp, err := DecodeResponse([]byte(cleanJSON(msg.Text())))
	if err != nil {
		return nil, err
	}

	resp.Usage.Model = s.model
	if msg.Model != "" {
		resp.Usage.Model = msg.Model
	}
	resp.Usage.InputTokens = int(msg.Usage.InputTokens)
	resp.Usage.OutputTokens = int(msg.Usage.OutputTokens)
	resp.Usage.CacheCreationTokens = int(msg.Usage.CacheCreationInputTokens)
	resp.Usage.CacheReadTokens = int(msg.Usage.CacheReadInputTokens)
	return resp, nil
}

// cleanJSON extracts a JSON object from text that may be wrapped in
// markdown code fences or prose.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
