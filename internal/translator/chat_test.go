package translator

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-relay/internal/models"
)

var testLimits = Limits{MaxBodyChars: 50000, MaxMessageChars: 2000, MaxHistoryItems: 20}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestDecodeChatRequest_Message(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr error
	}{
		{"plain", `{"message":"hi"}`, "hi", nil},
		{"trimmed", `{"message":"  hello there \n"}`, "hello there", nil},
		{"missing", `{}`, "", ErrMessageRequired},
		{"blank", `{"message":"   "}`, "", ErrMessageRequired},
		{"not a string", `{"message":42}`, "", ErrMessageRequired},
		{"array body", `[1,2,3]`, "", ErrMessageRequired},
		{"malformed", `{"message":`, "", ErrMalformedJSON},
		{"trailing garbage", `{"message":"hi"} nope`, "", ErrMalformedJSON},
		{"empty body", ``, "", ErrMalformedJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := DecodeChatRequest([]byte(tt.body), testLimits)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Message)
		})
	}
}

func TestDecodeChatRequest_MessageLength(t *testing.T) {
	ok := strings.Repeat("a", 2000)
	req, err := DecodeChatRequest(mustJSON(t, map[string]any{"message": ok}), testLimits)
	require.NoError(t, err)
	assert.Len(t, req.Message, 2000)

	_, err = DecodeChatRequest(mustJSON(t, map[string]any{"message": ok + "a"}), testLimits)
	require.ErrorIs(t, err, ErrMessageTooLong)

	var lengthErr *LengthError
	require.ErrorAs(t, err, &lengthErr)
	assert.Equal(t, 2000, lengthErr.Limit)
	assert.Contains(t, err.Error(), "2000")
}

func TestDecodeChatRequest_MessageLengthCountsCharacters(t *testing.T) {
	// 2000 multi-byte characters are within the limit.
	req, err := DecodeChatRequest(mustJSON(t, map[string]any{"message": strings.Repeat("é", 2000)}), testLimits)
	require.NoError(t, err)
	assert.Equal(t, 2000, len([]rune(req.Message)))
}

func TestDecodeChatRequest_BodyTooLarge(t *testing.T) {
	body := mustJSON(t, map[string]any{"message": "hi", "pad": strings.Repeat("x", 50000)})

	_, err := DecodeChatRequest(body, testLimits)
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestDecodeChatRequest_TooLargeBeatsMalformed(t *testing.T) {
	_, err := DecodeChatRequest([]byte(strings.Repeat("{", 50001)), testLimits)
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestDecodeChatRequest_HistoryNormalisation(t *testing.T) {
	body := mustJSON(t, map[string]any{
		"message": "next",
		"history": []any{
			map[string]any{"role": "assistant", "content": "  hello  "},
			map[string]any{"role": "ASSISTANT", "content": "case matters"},
			map[string]any{"role": "system", "content": "becomes user"},
			map[string]any{"content": "no role"},
			map[string]any{"role": "assistant", "content": "   "},
			map[string]any{"role": "user", "content": 12},
			"not an object",
			map[string]any{"role": "user", "content": strings.Repeat("z", 2500)},
		},
	})

	req, err := DecodeChatRequest(body, testLimits)
	require.NoError(t, err)
	require.Len(t, req.History, 5)

	assert.Equal(t, models.HistoryItem{Role: models.RoleAssistant, Content: "hello"}, req.History[0])
	assert.Equal(t, models.HistoryItem{Role: models.RoleUser, Content: "case matters"}, req.History[1])
	assert.Equal(t, models.HistoryItem{Role: models.RoleUser, Content: "becomes user"}, req.History[2])
	assert.Equal(t, models.HistoryItem{Role: models.RoleUser, Content: "no role"}, req.History[3])
	assert.Len(t, req.History[4].Content, 2000)
}

func TestDecodeChatRequest_HistoryNotArray(t *testing.T) {
	for _, history := range []string{`"text"`, `{"role":"user"}`, `null`, `7`} {
		req, err := DecodeChatRequest([]byte(`{"message":"hi","history":`+history+`}`), testLimits)
		require.NoError(t, err, history)
		assert.Empty(t, req.History, history)
	}
}

func TestDecodeChatRequest_HistoryKeepsLastTwenty(t *testing.T) {
	history := make([]map[string]any, 0, 25)
	for i := 0; i < 25; i++ {
		history = append(history, map[string]any{"role": "user", "content": fmt.Sprintf("turn %d", i)})
	}

	req, err := DecodeChatRequest(mustJSON(t, map[string]any{"message": "hi", "history": history}), testLimits)
	require.NoError(t, err)
	require.Len(t, req.History, 20)
	for i, item := range req.History {
		assert.Equal(t, fmt.Sprintf("turn %d", i+5), item.Content)
	}
}

func TestDecodeChatRequest_DropsEmptyBeforeWindowing(t *testing.T) {
	history := make([]map[string]any, 0, 30)
	for i := 0; i < 20; i++ {
		history = append(history, map[string]any{"content": fmt.Sprintf("keep %d", i)})
		if i%2 == 0 {
			history = append(history, map[string]any{"content": ""})
		}
	}

	req, err := DecodeChatRequest(mustJSON(t, map[string]any{"message": "hi", "history": history}), testLimits)
	require.NoError(t, err)
	require.Len(t, req.History, 20)
	assert.Equal(t, "keep 0", req.History[0].Content)
	assert.Equal(t, "keep 19", req.History[19].Content)
}
