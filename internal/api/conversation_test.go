package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finance-tutor/internal/db"
	"finance-tutor/internal/engine"
	"finance-tutor/internal/models"
	"finance-tutor/internal/tutor"
)

// fakeTutorServer stands in for the upstream question-answering service
func fakeTutorServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ask":
			w.Header().Set("Content-Type", "text/event-stream")
			io.WriteString(w, "data: Compound\n")
			io.WriteString(w, "data:  interest grows.\n")
			io.WriteString(w, `data: {"sources":[{"url":"https://x","heading":"Investopedia"}]}`+"\n")
			io.WriteString(w, "event: end\n")
		case "/quiz":
			json.NewEncoder(w).Encode(models.KnowledgeCheck{
				Question:      "What grows?",
				Choices:       []string{"Principal", "Interest"},
				CorrectAnswer: "Interest",
				Explanation:   "Interest compounds on interest.",
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

type apiHarness struct {
	server   *httptest.Server
	registry *engine.Registry
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	upstream := fakeTutorServer(t)
	t.Cleanup(upstream.Close)

	database, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate())
	t.Cleanup(func() { database.Close() })

	client := tutor.NewClient(tutor.WithBaseURL(upstream.URL))
	broadcaster := NewEventBroadcaster()
	factory := NewEngineFactory(database, client, broadcaster, EngineOptions{
		QuizEnabled: true,
		QuizSource:  engine.QuizFromAnswer,
		DetailLevel: models.DetailRegular,
	})
	registry := engine.NewRegistry(factory)
	t.Cleanup(registry.Shutdown)

	router := NewRouter(database, registry, broadcaster, "", "")
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &apiHarness{server: server, registry: registry}
}

func (h *apiHarness) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, h.server.URL+path, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func (h *apiHarness) createConversation(t *testing.T, title string) ConversationResponse {
	t.Helper()

	resp := h.do(t, http.MethodPost, "/api/conversations", CreateConversationRequest{Title: title})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var conv ConversationResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&conv))
	return conv
}

func TestCreateConversation(t *testing.T) {
	h := newAPIHarness(t)

	conv := h.createConversation(t, "Compound interest")
	assert.NotZero(t, conv.ID)
	assert.Equal(t, "Compound interest", conv.Title)
	assert.NotEmpty(t, conv.CreatedAt)
}

func TestCreateConversation_MissingTitle(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.do(t, http.MethodPost, "/api/conversations", CreateConversationRequest{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListConversations(t *testing.T) {
	h := newAPIHarness(t)

	h.createConversation(t, "First")
	h.createConversation(t, "Second")

	resp := h.do(t, http.MethodGet, "/api/conversations", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []ConversationResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list, 2)
}

func TestGetConversation_NotFound(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.do(t, http.MethodGet, "/api/conversations/999", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAsk_StreamsAndPersistsTurn(t *testing.T) {
	h := newAPIHarness(t)
	conv := h.createConversation(t, "Basics")

	resp := h.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%d/ask", conv.ID),
		AskRequest{Query: "What is compound interest?"})
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	ctrl, err := h.registry.Get(conv.ID)
	require.NoError(t, err)
	ctrl.Wait()

	msgResp := h.do(t, http.MethodGet, fmt.Sprintf("/api/conversations/%d/messages", conv.ID), nil)
	defer msgResp.Body.Close()
	require.Equal(t, http.StatusOK, msgResp.StatusCode)

	var messages []models.Message
	require.NoError(t, json.NewDecoder(msgResp.Body).Decode(&messages))
	require.Len(t, messages, 2)

	assert.Equal(t, models.RoleUser, messages[0].Role)
	assert.Equal(t, "What is compound interest?", messages[0].Content)

	assert.Equal(t, models.RoleAssistant, messages[1].Role)
	assert.Equal(t, "Compound interest grows.", messages[1].Content)
	require.Len(t, messages[1].Sources, 1)
	assert.Equal(t, "https://x", messages[1].Sources[0].URL)
}

func TestAsk_EmptyQuery(t *testing.T) {
	h := newAPIHarness(t)
	conv := h.createConversation(t, "Basics")

	resp := h.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%d/ask", conv.ID),
		AskRequest{Query: "   "})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAsk_InvalidDetailLevel(t *testing.T) {
	h := newAPIHarness(t)
	conv := h.createConversation(t, "Basics")

	resp := h.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%d/ask", conv.ID),
		AskRequest{Query: "q", DetailLevel: "expert"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAsk_ConversationNotFound(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.do(t, http.MethodPost, "/api/conversations/999/ask", AskRequest{Query: "q"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetQuiz_AvailableAfterTurn(t *testing.T) {
	h := newAPIHarness(t)
	conv := h.createConversation(t, "Basics")

	resp := h.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%d/ask", conv.ID),
		AskRequest{Query: "What is compound interest?"})
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	ctrl, err := h.registry.Get(conv.ID)
	require.NoError(t, err)
	ctrl.Wait()

	quizResp := h.do(t, http.MethodGet, fmt.Sprintf("/api/conversations/%d/quiz", conv.ID), nil)
	defer quizResp.Body.Close()
	require.Equal(t, http.StatusOK, quizResp.StatusCode)

	var body struct {
		Available bool                   `json:"available"`
		Quiz      *models.KnowledgeCheck `json:"quiz"`
	}
	require.NoError(t, json.NewDecoder(quizResp.Body).Decode(&body))
	assert.True(t, body.Available)
	require.NotNil(t, body.Quiz)
	assert.Equal(t, "What grows?", body.Quiz.Question)
}

func TestGetQuiz_EmptyBeforeAnyTurn(t *testing.T) {
	h := newAPIHarness(t)
	conv := h.createConversation(t, "Basics")

	resp := h.do(t, http.MethodGet, fmt.Sprintf("/api/conversations/%d/quiz", conv.ID), nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Available bool `json:"available"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.Available)
}

func TestExport_Transcript(t *testing.T) {
	h := newAPIHarness(t)
	conv := h.createConversation(t, "Basics")

	resp := h.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%d/ask", conv.ID),
		AskRequest{Query: "What is compound interest?"})
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	ctrl, err := h.registry.Get(conv.ID)
	require.NoError(t, err)
	ctrl.Wait()

	exportResp := h.do(t, http.MethodGet, fmt.Sprintf("/api/conversations/%d/export", conv.ID), nil)
	defer exportResp.Body.Close()
	require.Equal(t, http.StatusOK, exportResp.StatusCode)
	assert.Contains(t, exportResp.Header.Get("Content-Type"), "text/plain")

	transcript, err := io.ReadAll(exportResp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(transcript), "Basics")
	assert.Contains(t, string(transcript), "You:")
	assert.Contains(t, string(transcript), "Tutor:")
	assert.Contains(t, string(transcript), "Compound interest grows.")
}

func TestCancel_NotFoundWithoutController(t *testing.T) {
	h := newAPIHarness(t)
	conv := h.createConversation(t, "Basics")

	// No controller exists yet for this conversation
	resp := h.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%d/cancel", conv.ID), nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancel_AfterTurn(t *testing.T) {
	h := newAPIHarness(t)
	conv := h.createConversation(t, "Basics")

	resp := h.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%d/ask", conv.ID),
		AskRequest{Query: "q"})
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	cancelResp := h.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%d/cancel", conv.ID), nil)
	defer cancelResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, cancelResp.StatusCode)
}

func TestDeleteConversation(t *testing.T) {
	h := newAPIHarness(t)
	conv := h.createConversation(t, "Basics")

	resp := h.do(t, http.MethodDelete, fmt.Sprintf("/api/conversations/%d", conv.ID), nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	getResp := h.do(t, http.MethodGet, fmt.Sprintf("/api/conversations/%d", conv.ID), nil)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
	assert.Equal(t, 0, h.registry.Count())
}

func TestEvents_StreamsProgress(t *testing.T) {
	h := newAPIHarness(t)
	conv := h.createConversation(t, "Basics")

	eventsReq, err := http.NewRequest(http.MethodGet,
		fmt.Sprintf("%s/api/conversations/%d/events", h.server.URL, conv.ID), nil)
	require.NoError(t, err)
	eventsResp, err := http.DefaultClient.Do(eventsReq)
	require.NoError(t, err)
	defer eventsResp.Body.Close()
	require.Equal(t, http.StatusOK, eventsResp.StatusCode)

	reader := newSSEReader(eventsResp.Body)
	require.Equal(t, "connected", reader.nextEventType(t))

	resp := h.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%d/ask", conv.ID),
		AskRequest{Query: "What is compound interest?"})
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	seen := map[string]bool{}
	deadline := time.Now().Add(5 * time.Second)
	for !(seen["done"] && seen["quiz"]) {
		require.True(t, time.Now().Before(deadline), "timed out; saw %v", seen)
		seen[reader.nextEventType(t)] = true
	}
	assert.True(t, seen["token"])
	assert.True(t, seen["metadata"])
}

// sseReader pulls event types off a live SSE response body
type sseReader struct {
	body io.Reader
	buf  []byte
}

func newSSEReader(body io.Reader) *sseReader {
	return &sseReader{body: body}
}

func (r *sseReader) nextEventType(t *testing.T) string {
	t.Helper()

	chunk := make([]byte, 4096)
	for {
		if idx := bytes.Index(r.buf, []byte("\n")); idx >= 0 {
			line := string(r.buf[:idx])
			r.buf = r.buf[idx+1:]
			if strings.HasPrefix(line, "event: ") {
				return strings.TrimPrefix(line, "event: ")
			}
			continue
		}

		n, err := r.body.Read(chunk)
		if n > 0 {
			r.buf = append(r.buf, chunk[:n]...)
			continue
		}
		require.NoError(t, err, "event stream ended early")
	}
}
