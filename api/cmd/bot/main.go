package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"ticket-proxy/api/internal/config"
	"ticket-proxy/api/internal/httpserver"
	"ticket-proxy/api/internal/logx"
	"ticket-proxy/api/internal/relay"
	"ticket-proxy/api/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logx.Fatal().Err(err).Msg("load config")
	}
	logx.Init(logx.ParseEnvironment(cfg.Env))

	if cfg.TelegramBotToken == "" {
		logx.Fatal().Msg("missing required env TELEGRAM_BOT_TOKEN")
	}
	if cfg.Gemini.APIKey == "" {
		logx.Fatal().Msg("missing required env GEMINI_API_KEY")
	}

	svc, err := relay.FromConfig(cfg, nil)
	if err != nil {
		logx.Fatal().Err(err).Msg("build relay")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		logx.Fatal().Err(err).Msg("telegram")
	}
	bot.Debug = false

	r := &telegram.Router{
		Bot:     bot,
		Relay:   svc,
		Timeout: cfg.Relay.RequestTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	g, gctx := errgroup.WithContext(ctx)

	if webhookURL := strings.TrimSpace(cfg.WebhookURL); webhookURL != "" {
		path := "/webhook/" + shortHash(bot.Token)
		wh, err := tgbotapi.NewWebhook(strings.TrimRight(webhookURL, "/") + path)
		if err != nil {
			logx.Fatal().Err(err).Msg("webhook")
		}
		wh.DropPendingUpdates = true
		if _, err := bot.Request(wh); err != nil {
			logx.Fatal().Err(err).Msg("set webhook")
		}
		mux.HandleFunc(path, func(w http.ResponseWriter, req *http.Request) {
			upd, err := bot.HandleUpdate(req)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			go r.HandleUpdate(*upd)
		})
		logx.Info().Str("path", path).Msg("webhook mode")
	} else {
		if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			logx.Warn().Err(err).Msg("delete webhook")
		}
		g.Go(func() error {
			runPolling(gctx, bot, func(upd tgbotapi.Update) { go r.HandleUpdate(upd) })
			return nil
		})
		logx.Info().Msg("polling mode")
	}

	g.Go(func() error {
		return httpserver.Run(gctx, "0.0.0.0:"+cfg.Port, mux)
	})
	if err := g.Wait(); err != nil {
		logx.Fatal().Err(err).Msg("bot")
	}
}

var reRetryAfter = regexp.MustCompile(`(?i)retry after\s+(\d+)`)

func retryDelayFromError(err error) time.Duration {
	if err == nil {
		return 0
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "too many requests") { // HTTP 429 from Telegram
		if m := reRetryAfter.FindStringSubmatch(s); len(m) == 2 {
			if n, _ := strconv.Atoi(m[1]); n > 0 {
				return time.Duration(n) * time.Second
			}
		}
		return 3 * time.Second
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 2 * time.Second
	}
	return 1 * time.Second
}

func runPolling(ctx context.Context, bot *tgbotapi.BotAPI, handle func(tgbotapi.Update)) {
	offset := 0
	baseDelay := 1 * time.Second
	maxDelay := 15 * time.Second

	for {
		select {
		case <-ctx.Done():
			logx.Info().Msg("polling: context cancelled")
			return
		default:
		}

		u := tgbotapi.NewUpdate(offset)
		u.Timeout = 30 // long polling, seconds

		updates, err := bot.GetUpdates(u)
		if err != nil {
			d := min(max(retryDelayFromError(err), baseDelay), maxDelay)
			logx.Warn().Err(err).Dur("retry_in", d).Msg("polling error")
			select {
			case <-ctx.Done():
				return
			case <-time.After(d):
			}
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			handle(upd)
		}
	}
}

// shortHash is a stable FNV-1a digest of the token for the webhook path.
func shortHash(s string) string {
	h := uint64(1469598103934665603)
	const prime = 1099511628211
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		out[i] = hexdigits[h&0xF]
		h >>= 4
	}
	return string(out)
}
