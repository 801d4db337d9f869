package botapi_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/berkus/teloxide/botapi"
	"github.com/berkus/teloxide/core/listener"
	"github.com/berkus/teloxide/core/update"
	"github.com/berkus/teloxide/errs"
)

const testToken = "12345:TESTTOKEN"

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...botapi.Option) *botapi.Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	opts = append([]botapi.Option{
		botapi.WithBaseURL(ts.URL),
		botapi.WithHTTPClient(ts.Client()),
	}, opts...)
	return botapi.New(testToken, opts...)
}

func writeResult(t *testing.T, w http.ResponseWriter, result any) {
	t.Helper()
	payload, err := json.Marshal(result)
	require.NoError(t, err)
	w.Header().Set("Content-Type", "application/json")
	err = json.NewEncoder(w).Encode(map[string]any{
		"ok":     true,
		"result": json.RawMessage(payload),
	})
	require.NoError(t, err)
}

func writeAPIError(t *testing.T, w http.ResponseWriter, status int, description string, params map[string]any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]any{
		"ok":          false,
		"error_code":  status,
		"description": description,
	}
	if params != nil {
		body["parameters"] = params
	}
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func TestClientFetchUpdatesSuccess(t *testing.T) {
	var gotPath, gotContentType, gotRequestID string
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotRequestID = r.Header.Get("X-Request-ID")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		writeResult(t, w, []map[string]any{
			{"update_id": 10, "message": map[string]any{"message_id": 1, "date": 0, "chat": map[string]any{"id": 5, "type": "private"}, "text": "hi"}},
			{"update_id": 11, "message": map[string]any{"message_id": 2, "date": 0, "chat": map[string]any{"id": 5, "type": "private"}, "text": "there"}},
		})
	})

	batch, err := client.FetchUpdates(context.Background(), listener.FetchRequest{Timeout: 2 * time.Second})
	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.Equal(t, int64(10), batch[0].ID)
	require.Equal(t, int64(11), batch[1].ID)
	require.Equal(t, update.KindMessage, batch[1].Kind())

	require.Equal(t, "/bot"+testToken+"/getUpdates", gotPath)
	require.Equal(t, "application/json", gotContentType)
	require.NotEmpty(t, gotRequestID)
	require.Equal(t, float64(2), gotBody["timeout"])
	_, hasOffset := gotBody["offset"]
	require.False(t, hasOffset, "zero cursor must omit the offset field")
	_, hasFilter := gotBody["allowed_updates"]
	require.False(t, hasFilter, "nil filter must omit allowed_updates")
}

func TestClientFetchUpdatesSendsOffsetAndFilter(t *testing.T) {
	bodies := make(chan map[string]any, 2)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies <- body
		writeResult(t, w, []any{})
	})

	_, err := client.FetchUpdates(context.Background(), listener.FetchRequest{
		Offset:         42,
		Limit:          100,
		AllowedUpdates: []update.Kind{},
	})
	require.NoError(t, err)

	_, err = client.FetchUpdates(context.Background(), listener.FetchRequest{
		AllowedUpdates: []update.Kind{update.KindMessage},
	})
	require.NoError(t, err)

	first := <-bodies
	require.Equal(t, float64(42), first["offset"])
	require.Equal(t, float64(100), first["limit"])
	filter, present := first["allowed_updates"]
	require.True(t, present, "an empty non-nil filter is sent to clear the remote filter")
	require.Empty(t, filter)

	second := <-bodies
	require.Equal(t, []any{"message"}, second["allowed_updates"])
	_, hasOffset := second["offset"]
	require.False(t, hasOffset)
}

func TestClientFetchUpdatesAuthFailureIsFatal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(t, w, http.StatusUnauthorized, "Unauthorized", nil)
	})

	_, err := client.FetchUpdates(context.Background(), listener.FetchRequest{})
	require.Error(t, err)
	require.Equal(t, errs.CodeAuth, errs.CodeOf(err))
	require.True(t, errs.IsFatal(err))
	require.Contains(t, err.Error(), "Unauthorized")
}

func TestClientFetchUpdatesConflictIsFatal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(t, w, http.StatusConflict,
			"Conflict: terminated by other getUpdates request", nil)
	})

	_, err := client.FetchUpdates(context.Background(), listener.FetchRequest{})
	require.Equal(t, errs.CodeConflict, errs.CodeOf(err))
	require.True(t, errs.IsFatal(err))
}

func TestClientFetchUpdatesRateLimitCarriesRetryAfter(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(t, w, http.StatusTooManyRequests, "Too Many Requests: retry after 7",
			map[string]any{"retry_after": 7})
	})

	_, err := client.FetchUpdates(context.Background(), listener.FetchRequest{})
	require.Equal(t, errs.CodeRateLimited, errs.CodeOf(err))
	require.True(t, errs.IsRecoverable(err))
	ra, ok := errs.RetryAfterOf(err)
	require.True(t, ok)
	require.Equal(t, 7*time.Second, ra)
}

func TestClientFetchUpdatesServerErrorIsRecoverable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "<html>bad gateway</html>")
	})

	_, err := client.FetchUpdates(context.Background(), listener.FetchRequest{})
	require.Equal(t, errs.CodeRemote, errs.CodeOf(err))
	require.True(t, errs.IsRecoverable(err))
}

func TestClientFetchUpdatesMalformedBodyIsFatal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, "{not json")
	})

	_, err := client.FetchUpdates(context.Background(), listener.FetchRequest{})
	require.Equal(t, errs.CodeDecode, errs.CodeOf(err))
	require.True(t, errs.IsFatal(err), "a contract violation must not be retried forever")
}

func TestClientFetchUpdatesTransportErrorIsRecoverable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	client := botapi.New(testToken, botapi.WithBaseURL(ts.URL))
	ts.Close()

	_, err := client.FetchUpdates(context.Background(), listener.FetchRequest{})
	require.Equal(t, errs.CodeNetwork, errs.CodeOf(err))
	require.True(t, errs.IsRecoverable(err))
}

func TestClientGetMe(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bot"+testToken+"/getMe", r.URL.Path)
		writeResult(t, w, map[string]any{"id": 9000, "is_bot": true, "first_name": "echo", "username": "echo_bot"})
	})

	me, err := client.GetMe(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(9000), me.ID)
	require.True(t, me.IsBot)
	require.Equal(t, "echo_bot", me.Username)
}

func TestClientSendMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bot"+testToken+"/sendMessage", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, float64(77), body["chat_id"])
		require.Equal(t, "pong", body["text"])
		writeResult(t, w, map[string]any{
			"message_id": 31, "date": 1700000000,
			"chat": map[string]any{"id": 77, "type": "private"},
			"text": "pong",
		})
	})

	msg, err := client.SendMessage(context.Background(), botapi.SendMessageRequest{ChatID: 77, Text: "pong"})
	require.NoError(t, err)
	require.Equal(t, int64(31), msg.ID)
	require.Equal(t, "pong", msg.Text)
}

func TestClientSendMessageValidatesInput(t *testing.T) {
	var hits int
	client := newTestClient(t, func(http.ResponseWriter, *http.Request) { hits++ })

	_, err := client.SendMessage(context.Background(), botapi.SendMessageRequest{ChatID: 77})
	require.Equal(t, errs.CodeInvalid, errs.CodeOf(err))

	_, err = client.SendMessage(context.Background(), botapi.SendMessageRequest{Text: "no chat"})
	require.Equal(t, errs.CodeInvalid, errs.CodeOf(err))

	require.Zero(t, hits, "invalid requests must not reach the wire")
}

func TestClientSendDocumentMultipart(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bot"+testToken+"/sendDocument", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		require.Equal(t, "77", r.FormValue("chat_id"))
		require.Equal(t, "the notes", r.FormValue("caption"))

		attach := r.FormValue("document")
		require.True(t, strings.HasPrefix(attach, "attach://"), "document must reference an attached part")
		partName := strings.TrimPrefix(attach, "attach://")

		file, header, err := r.FormFile(partName)
		require.NoError(t, err)
		defer func() { _ = file.Close() }()
		content, err := io.ReadAll(file)
		require.NoError(t, err)
		require.Equal(t, "hello file", string(content))
		require.Equal(t, "notes.txt", header.Filename)

		writeResult(t, w, map[string]any{
			"message_id": 44, "date": 1700000000,
			"chat":     map[string]any{"id": 77, "type": "private"},
			"caption":  "the notes",
			"document": map[string]any{"file_id": "f1", "file_unique_id": "u1", "file_name": "notes.txt"},
		})
	})

	msg, err := client.SendDocument(context.Background(), botapi.SendDocumentRequest{
		ChatID:   77,
		FileName: "notes.txt",
		Caption:  "the notes",
		Content:  strings.NewReader("hello file"),
	})
	require.NoError(t, err)
	require.Equal(t, int64(44), msg.ID)
	require.NotNil(t, msg.Document)
	require.Equal(t, "notes.txt", msg.Document.FileName)
}

func TestClientRateLimiterPacesCalls(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeResult(t, w, []any{})
	}, botapi.WithRateLimit(50, 1))

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.FetchUpdates(context.Background(), listener.FetchRequest{})
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond,
		"three calls through a 50 rps burst-1 bucket need two token refills")
}

func TestClientEmptyTokenPanics(t *testing.T) {
	require.Panics(t, func() { botapi.New("  ") })
}
