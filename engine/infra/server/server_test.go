package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careline-tw/careline/engine/analyzer"
	"github.com/careline-tw/careline/engine/composer"
	"github.com/careline-tw/careline/engine/core"
	"github.com/careline-tw/careline/engine/flex"
	"github.com/careline-tw/careline/engine/knowledge"
	"github.com/careline-tw/careline/engine/knowledge/retriever"
	"github.com/careline-tw/careline/engine/line"
	"github.com/careline-tw/careline/engine/llm"
	"github.com/careline-tw/careline/engine/pipeline"
	"github.com/careline-tw/careline/engine/router"
	"github.com/careline-tw/careline/pkg/config"
	"github.com/careline-tw/careline/pkg/logger"
)

const serverCorpus = `{"chunk_id":"M1-01","module_id":"M1","chunk_type":"warning_sign","title":"記憶力減退影響生活","content":"忘記剛發生的事情，重複詢問同樣的問題。","keywords":["記憶","忘記","重複詢問"],"confidence_score":0.9,"source":"台灣失智症協會"}
{"chunk_id":"M3-03","module_id":"M3","chunk_type":"bpsd","title":"激動與攻擊行為","content":"容易發脾氣，對照顧者大吼大叫。","keywords":["激動","發脾氣","攻擊"],"confidence_score":0.85,"source":"台灣失智症協會"}
{"chunk_id":"M4-02","module_id":"M4","chunk_type":"care_task","title":"長照2.0申請","content":"撥打1966申請長照服務與照顧資源。","keywords":["長照","1966","申請"],"confidence_score":0.9,"source":"衛福部"}
{"chunk_id":"M2-01","module_id":"M2","chunk_type":"stage","title":"輕度失智症","content":"記憶力明顯減退，日常生活大致可自理。","keywords":["輕度","初期","階段"],"confidence_score":0.85,"source":"台灣失智症協會"}
`

type recordingReplier struct {
	mu       sync.Mutex
	tokens   []string
	messages []any
	err      error
}

func (r *recordingReplier) Reply(_ context.Context, replyToken string, messages ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = append(r.tokens, replyToken)
	r.messages = append(r.messages, messages...)
	return r.err
}

func (r *recordingReplier) last(t *testing.T) any {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.messages)
	return r.messages[len(r.messages)-1]
}

type cannedGateway struct {
	responses map[string]string
	err       error
}

func (g *cannedGateway) Complete(_ context.Context, req llm.Request) (json.RawMessage, error) {
	if g.err != nil {
		return nil, g.err
	}
	for marker, response := range g.responses {
		if strings.Contains(req.SystemPrompt, marker) {
			return json.RawMessage(response), nil
		}
	}
	return json.RawMessage(`{"matched_signs": [], "risk_level": "low", "recommendations": []}`), nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Line.ChannelAccessToken = "access-token"
	cfg.Line.ChannelSecret = "channel-secret"
	cfg.LLM.APIKeyOpenAI = "sk-test"
	cfg.Detail.BaseURL = "https://liff.example.com"
	return cfg
}

func newTestServer(t *testing.T, gw analyzer.Gateway, replier Replier) (*Server, *line.Verifier) {
	t.Helper()
	cfg := testConfig()
	store, err := knowledge.ReadStore(strings.NewReader(serverCorpus))
	require.NoError(t, err)
	svc, err := retriever.NewService(store, retriever.NewKeywordScorer(), cfg.Retriever.TopK)
	require.NoError(t, err)
	analyzers := make(map[core.ModuleID]*analyzer.Analyzer, len(core.AllModules))
	for _, id := range core.AllModules {
		a, err := analyzer.New(id, gw, store)
		require.NoError(t, err)
		analyzers[id] = a
	}
	rt := router.New(router.Vocabulary{
		core.ModuleWarningSigns: {"忘記", "記憶", "重複", "迷路"},
		core.ModuleStages:       {"階段", "輕度", "惡化"},
		core.ModuleBPSD:         {"發脾氣", "激動", "幻覺", "妄想"},
		core.ModuleCareTasks:    {"長照", "申請", "喘息"},
	})
	p, err := pipeline.New(rt, svc, analyzers, flex.NewBuilder(cfg.Detail.BaseURL))
	require.NoError(t, err)
	verifier, err := line.NewVerifier(cfg.Line.ChannelSecret)
	require.NoError(t, err)
	srv, err := New(cfg, logger.NewNoop(), p, verifier, replier, store)
	require.NoError(t, err)
	return srv, verifier
}

func webhookBody(t *testing.T, text string) []byte {
	t.Helper()
	req := line.WebhookRequest{
		Destination: "Udeadbeef",
		Events: []line.Event{{
			Type:       line.EventTypeMessage,
			Timestamp:  1767950000000,
			ReplyToken: "reply-token-1",
			Source:     line.Source{Type: "user", UserID: "U123"},
			Message:    &line.Message{ID: "m1", Type: line.MessageTypeText, Text: text},
		}},
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return body
}

func postWebhook(srv *Server, body []byte, signature string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(string(body)))
	if signature != "" {
		r.Header.Set(line.SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	return w
}

func TestWebhook(t *testing.T) {
	memoryResponse := `{"matched_signs":[{"warning_id":1,"warning_name":"記憶力減退影響生活","match_confidence":0.9,"rationale":"重複詢問"}],"risk_level":"moderate","recommendations":["盡早就醫評估"]}`

	t.Run("Should answer a caregiver description with a flex card", func(t *testing.T) {
		replier := &recordingReplier{}
		srv, verifier := newTestServer(t, &cannedGateway{responses: map[string]string{"警訊": memoryResponse}}, replier)
		body := webhookBody(t, "媽媽最近常常忘記吃藥，重複問同樣的問題")
		w := postWebhook(srv, body, verifier.Sign(body))
		assert.Equal(t, http.StatusOK, w.Code)

		msg, ok := replier.last(t).(*flex.Message)
		require.True(t, ok)
		assert.Equal(t, "flex", msg.Type)
		assert.Contains(t, msg.AltText, "失智症十大警訊")
		assert.Equal(t, []string{"reply-token-1"}, replier.tokens)
	})

	t.Run("Should reject a request with a bad signature", func(t *testing.T) {
		replier := &recordingReplier{}
		srv, _ := newTestServer(t, &cannedGateway{}, replier)
		body := webhookBody(t, "媽媽最近常常忘記吃藥")
		w := postWebhook(srv, body, "aW52YWxpZA==")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, replier.tokens)
	})

	t.Run("Should reject a missing signature", func(t *testing.T) {
		replier := &recordingReplier{}
		srv, _ := newTestServer(t, &cannedGateway{}, replier)
		body := webhookBody(t, "媽媽最近常常忘記吃藥")
		w := postWebhook(srv, body, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Should reject a signed but malformed payload", func(t *testing.T) {
		replier := &recordingReplier{}
		srv, verifier := newTestServer(t, &cannedGateway{}, replier)
		body := []byte(`{"events": [`)
		w := postWebhook(srv, body, verifier.Sign(body))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Should send the fallback card when every module times out", func(t *testing.T) {
		replier := &recordingReplier{}
		gw := &cannedGateway{err: &llm.Failure{Kind: llm.KindTimeout, Provider: "openai", Err: context.DeadlineExceeded}}
		srv, verifier := newTestServer(t, gw, replier)
		body := webhookBody(t, "媽媽最近常常忘記吃藥")
		w := postWebhook(srv, body, verifier.Sign(body))
		assert.Equal(t, http.StatusOK, w.Code)

		msg, ok := replier.last(t).(*flex.Message)
		require.True(t, ok)
		encoded, err := json.Marshal(msg)
		require.NoError(t, err)
		assert.Contains(t, string(encoded), composer.FallbackRecommendation)
	})

	t.Run("Should guide the user when the message is blank", func(t *testing.T) {
		replier := &recordingReplier{}
		srv, verifier := newTestServer(t, &cannedGateway{}, replier)
		body := webhookBody(t, "   ")
		w := postWebhook(srv, body, verifier.Sign(body))
		assert.Equal(t, http.StatusOK, w.Code)

		msg, ok := replier.last(t).(line.TextMessage)
		require.True(t, ok)
		assert.Contains(t, msg.Text, "描述")
	})

	t.Run("Should answer postback events with plain text", func(t *testing.T) {
		replier := &recordingReplier{}
		srv, verifier := newTestServer(t, &cannedGateway{}, replier)
		req := line.WebhookRequest{Events: []line.Event{{
			Type:       line.EventTypePostback,
			ReplyToken: "reply-token-2",
			Postback:   &line.Postback{Data: "action=detail&primary=M1"},
		}}}
		body, err := json.Marshal(req)
		require.NoError(t, err)
		w := postWebhook(srv, body, verifier.Sign(body))
		assert.Equal(t, http.StatusOK, w.Code)
		_, ok := replier.last(t).(line.TextMessage)
		assert.True(t, ok)
	})

	t.Run("Should ignore sticker messages without replying", func(t *testing.T) {
		replier := &recordingReplier{}
		srv, verifier := newTestServer(t, &cannedGateway{}, replier)
		req := line.WebhookRequest{Events: []line.Event{{
			Type:       line.EventTypeMessage,
			ReplyToken: "reply-token-3",
			Message:    &line.Message{ID: "m2", Type: "sticker"},
		}}}
		body, err := json.Marshal(req)
		require.NoError(t, err)
		w := postWebhook(srv, body, verifier.Sign(body))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, replier.tokens)
	})

	t.Run("Should return 200 even when reply delivery fails", func(t *testing.T) {
		replier := &recordingReplier{err: context.DeadlineExceeded}
		srv, verifier := newTestServer(t, &cannedGateway{responses: map[string]string{"警訊": memoryResponse}}, replier)
		body := webhookBody(t, "媽媽最近常常忘記吃藥")
		w := postWebhook(srv, body, verifier.Sign(body))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestHealthz(t *testing.T) {
	t.Run("Should report corpus counts", func(t *testing.T) {
		srv, _ := newTestServer(t, &cannedGateway{}, &recordingReplier{})
		r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, r)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Status  string         `json:"status"`
			Chunks  int            `json:"chunks"`
			Modules map[string]int `json:"modules"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, 4, resp.Chunks)
		assert.Equal(t, 1, resp.Modules["M1"])
	})
}
