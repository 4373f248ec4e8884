package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/tgshop/internal/auth"
	"github.com/hitoshi/tgshop/internal/model"
)

// Sender はメッセージ送信インターフェース。
type Sender interface {
	SendMessage(ctx context.Context, msg *Message) error
}

// TextSanitizer は利用者入力をHTMLメッセージへ埋め込める形に無害化する。
type TextSanitizer interface {
	PlainText(raw string) string
}

// NotifierConfig は通知の宛先とリンク先の設定。
type NotifierConfig struct {
	// ManagerIDs は新規注文を通知する管理者のTelegram利用者ID。
	ManagerIDs []int64
	// ShopURL はWooCommerceストアのURL。管理画面へのリンクに使用する。
	ShopURL string
	// MiniAppURL は顧客向け通知に付けるMini Appの起動URL。空の場合はボタンを付けない。
	MiniAppURL string
}

// statusLabels は注文ステータスの表示名。
var statusLabels = map[string]string{
	model.OrderStatusPending:    "支払い待ち",
	model.OrderStatusOnHold:     "確認待ち",
	model.OrderStatusProcessing: "処理中",
	model.OrderStatusCompleted:  "完了",
	model.OrderStatusCancelled:  "キャンセル",
	model.OrderStatusRefunded:   "返金済み",
	model.OrderStatusFailed:     "失敗",
}

// StatusLabel は注文ステータスの表示名を返す。未知のステータスはそのまま返す。
func StatusLabel(status string) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return status
}

// Notifier は注文に関する通知を組み立てて送信する。
type Notifier struct {
	sender    Sender
	sanitizer TextSanitizer
	cfg       NotifierConfig
	logger    *slog.Logger
}

// NewNotifier はNotifierを生成する。
func NewNotifier(sender Sender, sanitizer TextSanitizer, cfg NotifierConfig, logger *slog.Logger) *Notifier {
	if len(cfg.ManagerIDs) == 0 {
		logger.Warn("TELEGRAM_MANAGER_IDS が未設定のため新規注文は通知されません")
	}
	return &Notifier{
		sender:    sender,
		sanitizer: sanitizer,
		cfg:       cfg,
		logger:    logger,
	}
}

// NotifyNewOrder は新規注文を全管理者に通知する。
// 一部の管理者への送信に失敗しても残りの管理者には送信し、失敗をまとめて返す。
func (n *Notifier) NotifyNewOrder(ctx context.Context, order *model.Order, buyer *auth.Claim) error {
	if len(n.cfg.ManagerIDs) == 0 {
		return nil
	}

	text := n.formatNewOrder(order, buyer)
	var markup *InlineKeyboardMarkup
	if n.cfg.ShopURL != "" {
		markup = &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{{
			{Text: "管理画面で開く", URL: n.adminOrderURL(order.ID)},
		}}}
	}

	var errs []error
	for _, managerID := range n.cfg.ManagerIDs {
		err := n.sender.SendMessage(ctx, &Message{
			ChatID:                managerID,
			Text:                  text,
			ParseMode:             ParseModeHTML,
			DisableWebPagePreview: true,
			ReplyMarkup:           markup,
		})
		if err != nil {
			n.logger.Error("管理者への新規注文通知に失敗しました",
				slog.Int64("order_id", order.ID),
				slog.Int64("manager_id", managerID),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("manager_id=%d: %w", managerID, err))
		}
	}
	return errors.Join(errs...)
}

// NotifyOrderCreated は注文の受付完了を購入者に通知する。
func (n *Notifier) NotifyOrderCreated(ctx context.Context, telegramUserID int64, order *model.Order) error {
	text := fmt.Sprintf(
		"✅ ご注文 <b>No.%s</b> を受け付けました。\n\n"+
			"内容を確認のうえ、担当者よりご連絡いたします。\n"+
			"合計: <b>%s %s</b>",
		n.sanitizer.PlainText(order.Number),
		n.sanitizer.PlainText(order.Total),
		n.sanitizer.PlainText(order.Currency),
	)
	return n.sendToCustomer(ctx, telegramUserID, text)
}

// NotifyStatusUpdate は注文ステータスの変更を購入者に通知する。
func (n *Notifier) NotifyStatusUpdate(ctx context.Context, telegramUserID int64, order *model.Order) error {
	text := fmt.Sprintf(
		"ℹ️ ご注文 <code>No.%s</code> のステータスが更新されました。\n\n新しいステータス: <b>%s</b>",
		n.sanitizer.PlainText(order.Number),
		n.sanitizer.PlainText(StatusLabel(order.Status)),
	)
	return n.sendToCustomer(ctx, telegramUserID, text)
}

func (n *Notifier) sendToCustomer(ctx context.Context, telegramUserID int64, text string) error {
	msg := &Message{ChatID: telegramUserID, Text: text, ParseMode: ParseModeHTML}
	if n.cfg.MiniAppURL != "" {
		msg.ReplyMarkup = &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{{
			{Text: "ストアを開く", WebApp: &WebAppInfo{URL: n.cfg.MiniAppURL}},
		}}}
	}
	if err := n.sender.SendMessage(ctx, msg); err != nil {
		return fmt.Errorf("telegram_user_id=%d への通知に失敗しました: %w", telegramUserID, err)
	}
	return nil
}

func (n *Notifier) adminOrderURL(orderID int64) string {
	return fmt.Sprintf("%s/wp-admin/post.php?post=%d&action=edit", strings.TrimRight(n.cfg.ShopURL, "/"), orderID)
}

// formatNewOrder は管理者向けの新規注文メッセージを組み立てる。
func (n *Notifier) formatNewOrder(order *model.Order, buyer *auth.Claim) string {
	var b strings.Builder

	fmt.Fprintf(&b, "🎉 <b>新規注文</b> No.<code>%s</code>\n\n", n.sanitizer.PlainText(order.Number))
	fmt.Fprintf(&b, "🗓 <b>日時:</b> %s\n", formatOrderDate(order.DateCreated))
	fmt.Fprintf(&b, "👤 <b>購入者:</b> %s\n", n.formatBuyer(buyer))

	if phone := order.Billing.Phone; phone != "" {
		fmt.Fprintf(&b, "📞 <b>電話:</b> <code>%s</code>\n", n.sanitizer.PlainText(phone))
	}
	if city := order.Billing.City; city != "" {
		fmt.Fprintf(&b, "📍 <b>市区町村:</b> %s\n", n.sanitizer.PlainText(city))
	}

	b.WriteString("\n🛒 <b>注文内容:</b>\n")
	if len(order.LineItems) == 0 {
		b.WriteString("<i>明細なし</i>\n")
	}
	for _, item := range order.LineItems {
		fmt.Fprintf(&b, "- <code>%s</code> × %d  %s %s\n",
			n.sanitizer.PlainText(item.Name), item.Quantity,
			n.sanitizer.PlainText(item.Total), n.sanitizer.PlainText(order.Currency))
	}

	fmt.Fprintf(&b, "\n💰 <b>合計:</b> <code>%s %s</code>",
		n.sanitizer.PlainText(order.Total), n.sanitizer.PlainText(order.Currency))

	if note := n.sanitizer.PlainText(order.CustomerNote); note != "" {
		fmt.Fprintf(&b, "\n\n<b>備考:</b>\n<i>%s</i>", note)
	}
	return b.String()
}

func (n *Notifier) formatBuyer(buyer *auth.Claim) string {
	if buyer == nil {
		return "不明"
	}
	name := strings.TrimSpace(buyer.FirstName + " " + buyer.LastName)
	if name == "" {
		name = fmt.Sprintf("User %d", buyer.UserID)
	}
	s := fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, buyer.UserID, n.sanitizer.PlainText(name))
	if buyer.Username != "" {
		s += " (@" + n.sanitizer.PlainText(buyer.Username) + ")"
	}
	return s
}

// formatOrderDate はWooCommerceの日時文字列を表示用に整形する。解釈できない場合はそのまま返す。
func formatOrderDate(s string) string {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006/01/02 15:04")
		}
	}
	return s
}
