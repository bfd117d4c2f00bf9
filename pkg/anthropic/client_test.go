package anthropic

import (
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageResponse_Text(t *testing.T) {
	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "text", Text: `{"status":`},
		{Type: "thinking", Text: "ignored"},
		{Type: "text", Text: `"OK"}`},
	}}
	assert.Equal(t, `{"status":"OK"}`, resp.Text())
}

func TestMessageResponse_Text_Empty(t *testing.T) {
	assert.Equal(t, "", (&MessageResponse{}).Text())
}

func TestBuildCachedSystemBlocks(t *testing.T) {
	blocks := BuildCachedSystemBlocks("You reconstruct travel itineraries.", "5m")

	require.Len(t, blocks, 1)
	assert.Equal(t, "You reconstruct travel itineraries.", blocks[0].Text)
	require.NotNil(t, blocks[0].CacheControl)
	assert.Equal(t, "5m", blocks[0].CacheControl.TTL)
}

func TestFromSDKMessage(t *testing.T) {
	sdkMsg := &sdk.Message{
		ID:           "msg_test_123",
		Model:        "claude-sonnet-4-5-20250929",
		StopReason:   "end_turn",
		StopSequence: "STOP",
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "Hello world"},
			{Type: "text", Text: "Second block"},
		},
		Usage: sdk.Usage{
			InputTokens:              100,
			OutputTokens:             50,
			CacheCreationInputTokens: 2000,
			CacheReadInputTokens:     3000,
		},
	}

	resp := fromSDKMessage(sdkMsg)
	require.NotNil(t, resp)
	assert.Equal(t, "msg_test_123", resp.ID)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, "STOP", resp.StopSequence)
	require.Len(t, resp.Content, 2)
	assert.Equal(t, "Hello worldSecond block", resp.Text())
	assert.Equal(t, int64(2000), resp.Usage.CacheCreationInputTokens)
	assert.Equal(t, int64(3000), resp.Usage.CacheReadInputTokens)
}

func TestToSDKMessages_Roles(t *testing.T) {
	msgs := []Message{
		{Role: "user", Content: "Question"},
		{Role: "assistant", Content: "Answer"},
		{Role: "unknown", Content: "Defaults to user"},
	}
	require.Len(t, toSDKMessages(msgs), 3)
	assert.Empty(t, toSDKMessages(nil))
}

func TestToSDKSystemBlocks(t *testing.T) {
	blocks := []SystemBlock{
		{Text: "Plain"},
		{Text: "Cached", CacheControl: &CacheControl{TTL: "5m"}},
		{Text: "Default TTL", CacheControl: &CacheControl{}},
	}
	out := toSDKSystemBlocks(blocks)
	require.Len(t, out, 3)
	assert.Equal(t, "Plain", out[0].Text)
	assert.Equal(t, sdk.CacheControlEphemeralTTL("5m"), out[1].CacheControl.TTL)
	assert.NotNil(t, out[2].CacheControl)
}

func TestNewClient_ReturnsNonNil(t *testing.T) {
	client := NewClient("test-api-key", 0)
	require.NotNil(t, client)
}
