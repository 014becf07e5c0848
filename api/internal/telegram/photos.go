package telegram

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ticket-proxy/api/internal/llm/types"
	"ticket-proxy/api/internal/logx"
	"ticket-proxy/api/internal/relay"
	"ticket-proxy/api/internal/util"
)

const maxImageBytes = 10 << 20

var httpc = &http.Client{Timeout: 60 * time.Second}

func (r *Router) acceptPhoto(msg tgbotapi.Message) {
	// the last size is the largest
	ph := msg.Photo[len(msg.Photo)-1]
	r.process(msg.Chat.ID, ph.FileID, "image/jpeg")
}

func (r *Router) acceptDocument(msg tgbotapi.Message) {
	r.process(msg.Chat.ID, msg.Document.FileID, msg.Document.MimeType)
}

func (r *Router) process(chatID int64, fileID, mime string) {
	url, err := r.Bot.GetFileDirectURL(fileID)
	if err != nil {
		r.SendError(chatID, err)
		return
	}
	img, err := download(url)
	if err != nil {
		r.SendError(chatID, err)
		return
	}
	r.send(chatID, "Photo received, reading the ticket…")

	prompt := r.Prompt
	if prompt == "" {
		prompt = relay.IntakePrompt
	}

	ctx, cancel := r.context()
	defer cancel()

	rec, out, err := r.Relay.Extract(ctx, BuildPayload(prompt, img, mime))
	if err != nil {
		logx.Error().Err(err).Int64("chat_id", chatID).Msg("telegram: extraction failed")
		r.SendError(chatID, err)
		return
	}
	logx.Info().Int64("chat_id", chatID).Int("attempts", out.Attempts).Strs("fallbacks", out.Fallbacks).Msg("telegram: ticket extracted")
	r.SendResult(chatID, rec, out)
}

// BuildPayload wraps prompt and image into a generateContent payload.
func BuildPayload(prompt string, img []byte, mime string) types.Payload {
	return types.Payload{
		Contents: []types.Content{{
			Role: "user",
			Parts: []types.Part{
				{Text: prompt},
				{InlineData: &types.Blob{
					MimeType: util.PickMIME(mime, "", img),
					Data:     base64.StdEncoding.EncodeToString(img),
				}},
			},
		}},
	}
}

func download(url string) ([]byte, error) {
	resp, err := httpc.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(b) > maxImageBytes {
		return nil, fmt.Errorf("download: image larger than %d bytes", maxImageBytes)
	}
	return b, nil
}
