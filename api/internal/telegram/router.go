package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ticket-proxy/api/internal/errx"
	"ticket-proxy/api/internal/logx"
	"ticket-proxy/api/internal/relay"
	"ticket-proxy/api/internal/ticket"
	"ticket-proxy/api/internal/util"
)

type Router struct {
	Bot   *tgbotapi.BotAPI
	Relay *relay.Service

	// Prompt overrides relay.IntakePrompt when set.
	Prompt  string
	Timeout time.Duration
}

func (r *Router) HandleUpdate(upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	if upd.Message.IsCommand() {
		r.HandleCommand(upd)
		return
	}
	switch {
	case len(upd.Message.Photo) > 0:
		r.acceptPhoto(*upd.Message)
	case upd.Message.Document != nil && strings.HasPrefix(upd.Message.Document.MimeType, "image/"):
		r.acceptDocument(*upd.Message)
	default:
		r.send(upd.Message.Chat.ID, "Send a photo of the intake form and I will read the ticket fields.")
	}
}

func (r *Router) HandleCommand(upd tgbotapi.Update) {
	cid := upd.Message.Chat.ID
	switch upd.Message.Command() {
	case "start":
		r.send(cid, "Send a photo of an intake form: I will extract client name, phone, price, model and IMEI.\nCommands: /health")
	case "health":
		eng := r.Relay.Engine()
		r.send(cid, fmt.Sprintf("✅ OK (%s, %s, strategy %s)", eng.Name(), eng.GetModel(), r.Relay.Strategy()))
	default:
		r.send(cid, "Unknown command")
	}
}

func (r *Router) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := r.Bot.Send(msg); err != nil {
		logx.Warn().Err(err).Int64("chat_id", chatID).Msg("telegram: send failed")
	}
}

func (r *Router) SendResult(chatID int64, rec ticket.Record, out relay.Outcome) {
	r.send(chatID, util.Truncate(FormatTicket(rec, out), 3900))
}

func (r *Router) SendError(chatID int64, err error) {
	r.send(chatID, "⚠️ "+errx.MessageOf(err))
}

func (r *Router) context() (context.Context, context.CancelFunc) {
	d := r.Timeout
	if d <= 0 {
		d = 180 * time.Second
	}
	return context.WithTimeout(context.Background(), d)
}

// FormatTicket renders the record as a chat reply.
func FormatTicket(rec ticket.Record, out relay.Outcome) string {
	t := rec.Ticket()
	var b strings.Builder
	b.WriteString("📝 Ticket\n\n")
	rows := []struct {
		f ticket.Field
		v string
	}{
		{ticket.ClientName, t.ClientName},
		{ticket.Phone, t.Phone},
		{ticket.Price, t.Price},
		{ticket.Model, t.Model},
		{ticket.IMEI, t.IMEI},
	}
	for _, row := range rows {
		v := row.v
		if v == "" {
			v = "—"
		}
		fmt.Fprintf(&b, "%s: %s\n", row.f.Label(), v)
	}
	if missing := rec.Missing(ticket.Fields...); len(missing) > 0 {
		labels := make([]string, 0, len(missing))
		for _, f := range missing {
			labels = append(labels, f.Label())
		}
		fmt.Fprintf(&b, "\nNot found: %s\n", strings.Join(labels, ", "))
	}
	if out.Retried || len(out.Fallbacks) > 0 {
		fmt.Fprintf(&b, "\n(%d model calls", out.Attempts)
		if len(out.Fallbacks) > 0 {
			fmt.Fprintf(&b, "; recovered separately: %s", strings.Join(out.Fallbacks, ", "))
		}
		b.WriteString(")\n")
	}
	return b.String()
}
