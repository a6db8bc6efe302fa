// Package notifier implements delivery channels for lessons and quizzes.
// The Telegram channel talks to the Bot API directly and classifies every
// failure so callers can decide whether to retry.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"lessonbot/internal/domain/entity"
	"lessonbot/internal/usecase/publish"
)

// TelegramConfig contains configuration for the Telegram Bot API channel.
type TelegramConfig struct {
	// BotToken is the bot token issued by BotFather.
	BotToken string

	// ChatID is the channel or group the bot posts to, e.g. "@mychannel"
	// or a numeric id.
	ChatID string

	// APIBaseURL overrides the Bot API endpoint, for tests. Empty means
	// the public API.
	APIBaseURL string

	// Timeout is the HTTP request timeout for Bot API calls.
	Timeout time.Duration
}

const (
	telegramAPIBase = "https://api.telegram.org"

	// Bot API hard limit for message text.
	maxMessageLength = 4096
	truncationSuffix = "..."
)

// TelegramChannel sends lessons and quizzes to a Telegram chat.
// It implements the publish.Channel interface.
type TelegramChannel struct {
	config      TelegramConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
	logger      *slog.Logger
}

// NewTelegramChannel creates a TelegramChannel.
//
// The channel is initialized with a rate limiter of 1 request/second with a
// burst of 3 (Bot API allows roughly one message per second per chat).
func NewTelegramChannel(config TelegramConfig, logger *slog.Logger) *TelegramChannel {
	if config.APIBaseURL == "" {
		config.APIBaseURL = telegramAPIBase
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &TelegramChannel{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimiter: NewRateLimiter(1.0, 3),
		logger:      logger,
	}
}

// Name implements publish.Channel.
func (t *TelegramChannel) Name() string {
	return "telegram"
}

// sendMessageRequest is the JSON payload for the sendMessage method.
type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// sendPollRequest is the JSON payload for the sendPoll method.
type sendPollRequest struct {
	ChatID          string   `json:"chat_id"`
	Question        string   `json:"question"`
	Options         []string `json:"options"`
	Type            string   `json:"type"`
	CorrectOptionID int      `json:"correct_option_id"`
	IsAnonymous     bool     `json:"is_anonymous"`
}

// apiResponse is the envelope every Bot API method returns.
type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
	Parameters struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// SendLesson posts a lesson as an HTML-formatted message. It returns the
// provider message id on success.
func (t *TelegramChannel) SendLesson(ctx context.Context, lesson *entity.Lesson) (string, error) {
	requestID := uuid.New().String()
	log := t.logger.With(
		slog.String("request_id", requestID),
		slog.Int64("lesson_id", lesson.ID),
	)

	log.Info("sending lesson", slog.String("category", lesson.Category))

	if err := t.rateLimiter.Allow(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	payload := sendMessageRequest{
		ChatID:    t.config.ChatID,
		Text:      formatLesson(lesson),
		ParseMode: "HTML",
	}
	messageID, err := t.call(ctx, "sendMessage", payload)
	if err != nil {
		log.Warn("lesson delivery failed", slog.Any("error", err))
		return "", err
	}

	log.Info("lesson delivered", slog.String("message_id", messageID))
	return messageID, nil
}

// SendQuiz posts a quiz as a native Telegram quiz poll. It returns the
// provider message id on success.
func (t *TelegramChannel) SendQuiz(ctx context.Context, quiz *entity.Quiz) (string, error) {
	requestID := uuid.New().String()
	log := t.logger.With(
		slog.String("request_id", requestID),
		slog.Int64("lesson_id", quiz.LessonID),
	)

	log.Info("sending quiz")

	if err := t.rateLimiter.Allow(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	payload := sendPollRequest{
		ChatID:          t.config.ChatID,
		Question:        quiz.Question,
		Options:         quiz.Options,
		Type:            "quiz",
		CorrectOptionID: quiz.CorrectOption,
		IsAnonymous:     true,
	}
	messageID, err := t.call(ctx, "sendPoll", payload)
	if err != nil {
		log.Warn("quiz delivery failed", slog.Any("error", err))
		return "", err
	}

	log.Info("quiz delivered", slog.String("message_id", messageID))
	return messageID, nil
}

// call posts one Bot API method, classifies any failure and returns the
// message id from the response envelope.
func (t *TelegramChannel) call(ctx context.Context, method string, payload any) (string, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", &publish.SendError{
			Kind:    publish.KindPermanent,
			Message: fmt.Sprintf("marshal %s payload", method),
			Cause:   err,
		}
	}

	url := fmt.Sprintf("%s/bot%s/%s", t.config.APIBaseURL, t.config.BotToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", &publish.SendError{
			Kind:    publish.KindPermanent,
			Message: fmt.Sprintf("create %s request", method),
			Cause:   err,
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &publish.SendError{
			Kind:    publish.KindTransient,
			Message: fmt.Sprintf("execute %s request: %v", method, err),
			Cause:   err,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var apiResp apiResponse
		if err := json.Unmarshal(body, &apiResp); err == nil && apiResp.Result.MessageID != 0 {
			return strconv.FormatInt(apiResp.Result.MessageID, 10), nil
		}
		return "", nil
	}

	return "", classifyStatus(method, resp, body)
}

// classifyStatus maps a non-2xx Bot API response to a SendError.
//
//   - 429: rate limited, with the provider's retry_after hint
//   - 5xx: transient provider outage
//   - other 4xx: permanent, retrying cannot help
func classifyStatus(method string, resp *http.Response, body []byte) *publish.SendError {
	description := string(body)
	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err == nil && apiResp.Description != "" {
		description = apiResp.Description
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &publish.SendError{
			Kind:           publish.KindRateLimited,
			StatusCode:     resp.StatusCode,
			Message:        fmt.Sprintf("%s throttled: %s", method, description),
			RetryAfterHint: extractRetryAfter(resp, apiResp),
		}
	case resp.StatusCode >= 500:
		return &publish.SendError{
			Kind:       publish.KindTransient,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s server error: %s", method, description),
		}
	default:
		return &publish.SendError{
			Kind:       publish.KindPermanent,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s rejected: %s", method, description),
		}
	}
}

// extractRetryAfter reads the throttle delay from the response parameters,
// falling back to the Retry-After header, then to 5 seconds.
func extractRetryAfter(resp *http.Response, apiResp apiResponse) time.Duration {
	if apiResp.Parameters.RetryAfter > 0 {
		return time.Duration(apiResp.Parameters.RetryAfter) * time.Second
	}
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 5 * time.Second
}

// formatLesson renders a lesson as Telegram HTML, truncated to the Bot API
// message limit.
func formatLesson(lesson *entity.Lesson) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(lesson.Title))
	fmt.Fprintf(&b, "<i>%s · %s</i>\n\n", html.EscapeString(lesson.Category), html.EscapeString(lesson.Difficulty))
	b.WriteString(html.EscapeString(lesson.Content))

	if len(lesson.Tags) > 0 {
		b.WriteString("\n\n")
		for i, tag := range lesson.Tags {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "#%s", html.EscapeString(tag))
		}
	}
	return truncate(b.String(), maxMessageLength, truncationSuffix)
}

// truncate shortens text to maxLength, appending suffix when it cuts.
func truncate(text string, maxLength int, suffix string) string {
	if len(text) <= maxLength {
		return text
	}
	cut := maxLength - len(suffix)
	if cut < 0 {
		cut = 0
	}
	return text[:cut] + suffix
}
