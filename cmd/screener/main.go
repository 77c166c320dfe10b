package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/Screener/config"
	"github.com/Alias1177/Screener/internal/alerts"
	"github.com/Alias1177/Screener/internal/market"
	"github.com/Alias1177/Screener/internal/notify"
	"github.com/Alias1177/Screener/internal/queryparse"
	"github.com/Alias1177/Screener/internal/screener"
	"github.com/Alias1177/Screener/internal/store"
	"github.com/Alias1177/Screener/models"
)

const queryTimeout = 2 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
	log.Logger = logger

	db, err := store.New(store.ConnectionParams{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if cfg.TelegramBotToken == "" {
		logger.Fatal().Msg("TELEGRAM_BOT_TOKEN not set in environment")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize Telegram bot")
	}
	logger.Info().Str("username", bot.Self.UserName).Msg("Authorized on Telegram")

	client := market.NewClient(time.Duration(cfg.RequestTimeout) * time.Second)
	universe := market.NewUniverse(client)
	notifier := notify.NewTelegram(bot)
	scr := screener.New(client, universe, cfg.SymbolLimit)

	engine := alerts.New(db, client, universe, notifier, cfg.TelegramChatID)
	engine.Start()
	defer engine.Stop()

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := bot.GetUpdatesChan(updateConfig)

	h := &handler{bot: bot, screener: scr, engine: engine, logger: logger}
	for update := range updates {
		if update.Message == nil || update.Message.Text == "" {
			continue
		}
		h.handleMessage(update.Message)
	}
}

type handler struct {
	bot      *tgbotapi.BotAPI
	screener *screener.Service
	engine   *alerts.Engine
	logger   zerolog.Logger
}

func (h *handler) handleMessage(msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	chatID := msg.Chat.ID

	switch {
	case text == "/start", text == "/help":
		h.reply(chatID, helpText)
	case strings.HasPrefix(text, "/alert "):
		h.reply(chatID, h.createAlert(strings.TrimPrefix(text, "/alert ")))
	case text == "/alerts":
		h.reply(chatID, h.listAlerts())
	case strings.HasPrefix(text, "/delalert "):
		h.reply(chatID, h.deleteAlert(strings.TrimPrefix(text, "/delalert ")))
	case strings.HasPrefix(text, "/pause "):
		h.reply(chatID, h.toggleAlert(strings.TrimPrefix(text, "/pause "), false))
	case strings.HasPrefix(text, "/resume "):
		h.reply(chatID, h.toggleAlert(strings.TrimPrefix(text, "/resume "), true))
	case text == "/settings":
		h.reply(chatID, formatSettings(h.engine.Settings()))
	case strings.HasPrefix(text, "/quiet"):
		h.reply(chatID, h.setQuiet(strings.TrimSpace(strings.TrimPrefix(text, "/quiet"))))
	case strings.HasPrefix(text, "/timezone "):
		h.reply(chatID, h.setTimezone(strings.TrimPrefix(text, "/timezone ")))
	case strings.HasPrefix(text, "/"):
		h.reply(chatID, "Unknown command. Send /help for usage.")
	default:
		h.runQuery(chatID, text)
	}
}

func (h *handler) runQuery(chatID int64, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	h.reply(chatID, "Scanning...")
	res, problems, err := h.screener.Run(ctx, text)
	if err != nil {
		h.logger.Error().Err(err).Str("query", text).Msg("Query run failed")
		h.reply(chatID, "Market data is unavailable right now, try again in a minute.")
		return
	}
	if len(problems) > 0 {
		h.reply(chatID, "I could not understand that query:\n- "+strings.Join(problems, "\n- "))
		return
	}
	h.reply(chatID, formatResult(res))
}

// createAlert parses "/alert <coin|any> <above|below|at> <indicator...>
// [once] [support|resistance]" into an alert definition.
func (h *handler) createAlert(args string) string {
	fields := strings.Fields(args)
	if len(fields) < 3 {
		return "Usage: /alert <COIN|any> <above|below|at> <indicator> [once] [support|resistance]\nExample: /alert BTCUSDT above 1d ema200 once"
	}

	a := models.Alert{
		Coin:      normalizeCoin(fields[0]),
		Condition: models.Comparison(strings.ToLower(fields[1])),
		Frequency: models.FrequencyRepeat,
	}
	rest := strings.Join(fields[2:], " ")
	lower := strings.ToLower(rest)

	if strings.Contains(lower, "once") {
		a.Frequency = models.FrequencyOnce
	}
	switch {
	case strings.Contains(lower, "support"):
		a.SRFilter = models.SRSupport
	case strings.Contains(lower, "resistance"):
		a.SRFilter = models.SRResistance
	}

	if strings.Contains(lower, "trend") {
		a.UseTrend = true
		a.Spec.Timeframe = queryparse.QueryTimeframe(rest)
	} else if spec, ok := queryparse.FirstSpec(rest); ok {
		a.Spec = spec
	}

	created, err := h.engine.Create(a)
	if err != nil {
		return "Cannot create that alert: " + err.Error()
	}
	return fmt.Sprintf("Alert %s created: %s", created.ID, describeAlert(created))
}

func (h *handler) listAlerts() string {
	list := h.engine.List()
	if len(list) == 0 {
		return "No alerts configured. Create one with /alert."
	}
	var b strings.Builder
	b.WriteString("Your alerts:\n")
	for _, a := range list {
		state := "▶️"
		if !a.Enabled {
			state = "⏸"
		}
		fmt.Fprintf(&b, "%s %s — %s\n", state, a.ID, describeAlert(a))
	}
	return b.String()
}

func (h *handler) deleteAlert(id string) string {
	if err := h.engine.Delete(strings.TrimSpace(id)); err != nil {
		return "Cannot delete: " + err.Error()
	}
	return "Alert deleted."
}

func (h *handler) toggleAlert(id string, enabled bool) string {
	if err := h.engine.SetEnabled(strings.TrimSpace(id), enabled); err != nil {
		return "Cannot update: " + err.Error()
	}
	if enabled {
		return "Alert resumed."
	}
	return "Alert paused."
}

// setQuiet handles "/quiet HH:MM HH:MM" and "/quiet off".
func (h *handler) setQuiet(args string) string {
	s := h.engine.Settings()
	switch fields := strings.Fields(args); {
	case len(fields) == 1 && strings.EqualFold(fields[0], "off"):
		s.QuietHoursStart, s.QuietHoursEnd = "", ""
	case len(fields) == 2:
		s.QuietHoursStart, s.QuietHoursEnd = fields[0], fields[1]
	default:
		return "Usage: /quiet HH:MM HH:MM or /quiet off"
	}
	if err := h.engine.UpdateSettings(s); err != nil {
		return "Cannot update settings: " + err.Error()
	}
	return formatSettings(h.engine.Settings())
}

func (h *handler) setTimezone(tz string) string {
	s := h.engine.Settings()
	s.Timezone = strings.TrimSpace(tz)
	if err := h.engine.UpdateSettings(s); err != nil {
		return "Cannot update settings: " + err.Error()
	}
	return formatSettings(h.engine.Settings())
}

func (h *handler) reply(chatID int64, text string) {
	if _, err := h.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		h.logger.Error().Err(err).Msg("Failed to send reply")
	}
}

func normalizeCoin(raw string) string {
	if strings.EqualFold(raw, models.AnyCoin) {
		return models.AnyCoin
	}
	coin := strings.ToUpper(raw)
	if !strings.HasSuffix(coin, "USDT") {
		coin += "USDT"
	}
	return coin
}

func describeAlert(a models.Alert) string {
	target := a.Spec.String()
	if a.UseTrend {
		target = fmt.Sprintf("%s trend cluster", a.Spec.Timeframe)
	}
	desc := fmt.Sprintf("%s %s %s, %s", a.Coin, a.Condition, target, a.Frequency)
	if a.SRFilter != models.SRNone {
		desc += fmt.Sprintf(", acting as %s", a.SRFilter)
	}
	return desc
}

func formatSettings(s models.EngineSettings) string {
	quiet := "off"
	if s.QuietHoursStart != "" && s.QuietHoursEnd != "" {
		quiet = s.QuietHoursStart + "–" + s.QuietHoursEnd
	}
	return fmt.Sprintf("Check interval: every %d min\nTimezone: %s\nQuiet hours: %s",
		s.CheckIntervalMinutes, s.Timezone, quiet)
}

// formatResult lists matched symbols with price and distance to the first
// queried indicator.
func formatResult(res *screener.Result) string {
	if len(res.Matched) == 0 {
		return "No symbols match right now."
	}
	specs := res.Query.Specs()
	sort.Slice(specs, func(i, j int) bool { return specs[i].String() < specs[j].String() })

	var b strings.Builder
	fmt.Fprintf(&b, "Matched %d symbol(s):\n", len(res.Matched))
	for _, sym := range res.Matched {
		sig := res.Signals[sym]
		line := fmt.Sprintf("• %s  %.6g", sym, sig.Price)
		if len(specs) > 0 {
			if snap, ok := sig.Snapshot(specs[0]); ok {
				line += fmt.Sprintf("  (%+.2f%% vs %s", snap.DiffPercent, specs[0])
				if snap.SupportResistance != models.SRNone {
					line += ", " + string(snap.SupportResistance)
				}
				line += ")"
			}
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

const helpText = `Crypto MA screener.

Send a free-text query, for example:
  coins above 4h EMA200
  1d MA100 < EMA200 < MA300
  price between 4h MA100 and 1d EMA200
  show 4h trend as support

Alerts:
  /alert <COIN|any> <above|below|at> <indicator> [once] [support|resistance]
  /alerts            list alerts
  /pause <id>        pause an alert
  /resume <id>       resume an alert
  /delalert <id>     delete an alert

Settings:
  /settings          show engine settings
  /quiet HH:MM HH:MM quiet hours (or /quiet off)
  /timezone <IANA>   quiet-hours timezone`
