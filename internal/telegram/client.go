// Package telegram はTelegram Bot APIによる通知送信を提供する。
//
// 送信はsendMessageのみを使用し、ボットの会話処理は扱わない。
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultAPIURL はTelegram Bot APIのデフォルトのエンドポイント。
	DefaultAPIURL = "https://api.telegram.org"
	// DefaultTimeout はBot API呼び出しのデフォルトのタイムアウト。
	DefaultTimeout = 10 * time.Second

	// ParseModeHTML はHTMLパースモード。
	ParseModeHTML = "HTML"

	maxResponseSize = 1 << 20
)

// Message はsendMessageのリクエストパラメータ。
type Message struct {
	ChatID                int64                 `json:"chat_id"`
	Text                  string                `json:"text"`
	ParseMode             string                `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool                  `json:"disable_web_page_preview,omitempty"`
	ReplyMarkup           *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// InlineKeyboardMarkup はメッセージに付与するインラインキーボード。
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// InlineKeyboardButton はURLボタンまたはMini App起動ボタン。
type InlineKeyboardButton struct {
	Text   string      `json:"text"`
	URL    string      `json:"url,omitempty"`
	WebApp *WebAppInfo `json:"web_app,omitempty"`
}

// WebAppInfo はMini AppのURL。
type WebAppInfo struct {
	URL string `json:"url"`
}

// Error はBot APIが ok=false で返したエラー。
type Error struct {
	Code        int
	Description string
}

func (e *Error) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// Client はBot APIクライアント。
type Client struct {
	httpClient *http.Client
	endpoint   string
	logger     *slog.Logger
}

// NewClient はClientを生成する。apiURLが空の場合はDefaultAPIURLを使用する。
func NewClient(httpClient *http.Client, apiURL, botToken string, logger *slog.Logger) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{
		httpClient: httpClient,
		endpoint:   strings.TrimRight(apiURL, "/") + "/bot" + botToken,
		logger:     logger,
	}
}

// SendMessage はメッセージを送信する。
func (c *Client) SendMessage(ctx context.Context, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("telegram sendMessage: リクエストのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram sendMessage: リクエストの生成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// URLにボットトークンが含まれるためエラー文字列をそのまま返さない
		return fmt.Errorf("telegram sendMessage: 送信に失敗しました: %w", redactToken(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("telegram sendMessage: レスポンスの読み取りに失敗しました: %w", err)
	}

	var result apiResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("telegram sendMessage: 不正なレスポンスです (status=%d): %w", resp.StatusCode, err)
	}
	if !result.OK {
		code := result.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return &Error{Code: code, Description: result.Description}
	}

	c.logger.Debug("Telegramメッセージを送信しました", slog.Int64("chat_id", msg.ChatID))
	return nil
}

// redactToken は*url.Errorに含まれるURLを取り除いた内部エラーを返す。
func redactToken(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
