package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/careline-tw/careline/engine/core"
	"github.com/careline-tw/careline/engine/line"
	"github.com/careline-tw/careline/pkg/logger"
)

// maxBodyBytes bounds the raw webhook body; the platform batches at
// most a handful of events per delivery.
const maxBodyBytes = 1 << 20

const (
	apologyText  = "抱歉，系統暫時無法處理您的訊息，請稍後再試，若有疑慮建議諮詢專業醫療人員。"
	emptyText    = "請描述您所觀察到的狀況，例如：媽媽最近常常忘記吃藥，重複問同樣的問題。"
	postbackText = "詳細分析頁面尚未開放，建議將分析結果截圖保存，並諮詢專業醫療人員。"
)

// handleWebhook is the platform-facing endpoint. A bad signature gets
// 400; everything after verification answers 200 so the platform does
// not redeliver, with failures turned into apology replies.
func (s *Server) handleWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	if err := s.verifier.Verify(c.Request, body); err != nil {
		logger.FromContext(c.Request.Context()).Warn("webhook signature rejected", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}
	var req line.WebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}
	for i := range req.Events {
		s.handleEvent(c.Request.Context(), &req.Events[i])
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleEvent(ctx context.Context, event *line.Event) {
	switch {
	case event.IsTextMessage():
		s.handleTextMessage(ctx, event)
	case event.Type == line.EventTypePostback && event.ReplyToken != "":
		s.reply(ctx, event.ReplyToken, line.NewTextMessage(postbackText))
	default:
		logger.FromContext(ctx).Debug("event ignored", "type", event.Type)
	}
}

func (s *Server) handleTextMessage(ctx context.Context, event *line.Event) {
	log := logger.FromContext(ctx)
	deadlineCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.RequestDeadline())
	defer cancel()

	if strings.TrimSpace(event.Message.Text) == "" {
		s.reply(deadlineCtx, event.ReplyToken, line.NewTextMessage(emptyText))
		return
	}
	utterance := core.NewUtterance(
		event.Message.Text,
		event.Source.UserID,
		s.cfg.Server.MaxInputLength,
		time.UnixMilli(event.Timestamp),
	)
	msg, err := s.pipeline.Respond(deadlineCtx, utterance)
	if err != nil {
		log.Error("pipeline failed, sending apology", "error", err)
		s.reply(deadlineCtx, event.ReplyToken, line.NewTextMessage(apologyText))
		return
	}
	s.reply(deadlineCtx, event.ReplyToken, msg)
}

func (s *Server) reply(ctx context.Context, replyToken string, message any) {
	if err := s.replier.Reply(ctx, replyToken, message); err != nil {
		logger.FromContext(ctx).Error("reply delivery failed", "error", err)
	}
}
