package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"weekly-health-plan/internal/adjust"
	"weekly-health-plan/internal/config"
	"weekly-health-plan/internal/metrics"
	"weekly-health-plan/internal/planapi"
	"weekly-health-plan/internal/planner"
	"weekly-health-plan/internal/planview"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const requestTimeout = 2 * time.Minute

// Sender is the part of the Telegram API the bot talks to.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot wraps the Telegram API and the weekly plan services.
type Bot struct {
	api          Sender
	client       planapi.Client
	view         *planview.State
	coordinator  *adjust.Coordinator
	metricsStore *metrics.Store
	cfg          *config.Config
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(
	cfg *config.Config,
	client planapi.Client,
	view *planview.State,
	coordinator *adjust.Coordinator,
	metricsStore *metrics.Store,
) (*Bot, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	webhookURL := cfg.TelegramWebhookURL
	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url %s: %w", webhookURL, err)
	}
	resp, err := bot.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", webhookURL, err)
	}
	log.Printf("Webhook set response: %s", resp.Description)

	return newBot(bot, cfg, client, view, coordinator, metricsStore), nil
}

func newBot(api Sender, cfg *config.Config, client planapi.Client, view *planview.State, coordinator *adjust.Coordinator, metricsStore *metrics.Store) *Bot {
	return &Bot{
		api:          api,
		client:       client,
		view:         view,
		coordinator:  coordinator,
		metricsStore: metricsStore,
		cfg:          cfg,
	}
}

// Routes returns the webhook and health handlers.
func (b *Bot) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/webhook", b.handleWebhook)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return r
}

func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		log.Printf("Error parsing update: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if update.CallbackQuery != nil {
		if !b.isAllowed(update.CallbackQuery.From) {
			log.Printf("⚠️ Unauthorized callback from UserID: %d", update.CallbackQuery.From.ID)
			return
		}
		go b.handleCallbackQuery(update.CallbackQuery)
		return
	}

	if update.Message == nil {
		return
	}

	if !b.isAllowed(update.Message.From) {
		log.Printf("⚠️ Unauthorized access attempt from UserID: %d (@%s)", update.Message.From.ID, update.Message.From.UserName)
		return
	}

	go b.processMessage(update.Message)
}

func (b *Bot) isAllowed(from *tgbotapi.User) bool {
	return from != nil && slices.Contains(b.cfg.TelegramAllowedUserIDs, from.ID)
}

func (b *Bot) processMessage(msg *tgbotapi.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if !msg.IsCommand() {
		// Free text is a change request for the whole week.
		b.handleAIAdjust(ctx, msg.Chat.ID, msg.Text, "")
		return
	}

	args := strings.TrimSpace(msg.CommandArguments())
	switch msg.Command() {
	case "start", "help":
		b.sendMarkdown(msg.Chat.ID, helpText)
	case "week":
		b.handleWeek(ctx, msg.Chat.ID)
	case "today":
		b.handleToday(ctx, msg.Chat.ID)
	case "day":
		b.handleDay(ctx, msg.Chat.ID, args)
	case "regen":
		b.handleRegenerate(ctx, msg.Chat.ID, args)
	case "skip":
		b.handleAdjustDay(ctx, msg.Chat.ID, args, planapi.SkipExercise)
	case "reduce":
		b.handleAdjustDay(ctx, msg.Chat.ID, args, planapi.ReduceExercise)
	case "change":
		b.handleAdjustDay(ctx, msg.Chat.ID, args, planapi.ChangeExercise)
	case "done":
		b.handleDone(ctx, msg.Chat.ID, args)
	case "diet":
		b.handleAIAdjust(ctx, msg.Chat.ID, args, "diet")
	case "metrics":
		b.handleMetricsRequest(msg)
	default:
		b.sendMarkdown(msg.Chat.ID, "🤔 Unknown command.\n\n"+helpText)
	}
}

const helpText = `*Weekly plan bot*

/week - this week's plan
/today - today's plan
/day <weekday> - one day of this week
/regen [week] - regenerate this week
/skip, /reduce, /change <weekday> - adjust a day's exercise
/done <weekday> [adherence%] - mark a day as done
/diet <request> - change the diet plan

Anything else you write is sent as a change request for the week.`

// loadPlan refreshes the view and reports to the chat when there is no plan.
func (b *Bot) loadPlan(ctx context.Context, chatID int64) (planview.Snapshot, bool) {
	if err := b.view.Refresh(ctx); err != nil {
		log.Printf("Error loading plan: %v", err)
		b.sendError(chatID, "loading your plan", err)
		return planview.Snapshot{}, false
	}
	snap := b.view.Snapshot()
	if snap.Plan == nil {
		b.sendMarkdown(chatID, "📭 No plan for this week yet. Use /regen to generate one.")
		return snap, false
	}
	return snap, true
}

func (b *Bot) handleWeek(ctx context.Context, chatID int64) {
	snap, ok := b.loadPlan(ctx, chatID)
	if !ok {
		return
	}
	msg := tgbotapi.NewMessage(chatID, formatWeekMarkdown(snap))
	msg.ParseMode = "Markdown"
	if snap.IsOutdated() {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("🔄 Regenerate week", "regen|"),
			),
		)
	}
	b.send(msg)
}

func (b *Bot) handleDay(ctx context.Context, chatID int64, arg string) {
	day, ok := planner.ParseWeekday(arg)
	if !ok {
		b.sendMarkdown(chatID, "Usage: /day <weekday>, e.g. `/day tue`")
		return
	}
	snap, ok := b.loadPlan(ctx, chatID)
	if !ok {
		return
	}
	key := snap.Week.Start.AddDate(0, 0, day.Index()).Day()
	ex, hasEx := snap.DayExercise(key)
	nut, hasNut := snap.DayNutrition(key)
	if !hasEx && !hasNut {
		b.sendMarkdown(chatID, fmt.Sprintf("📭 No plan for %s.", titleCase(string(day))))
		return
	}
	b.sendDay(chatID, day, formatDayMarkdown(titleCase(string(day)), ex, nut))
}

func (b *Bot) handleToday(ctx context.Context, chatID int64) {
	today, err := b.client.TodayPlan(ctx)
	if errors.Is(err, planapi.ErrNotFound) {
		b.sendMarkdown(chatID, "📭 No plan for today.")
		return
	}
	if err != nil {
		log.Printf("Error fetching today's plan: %v", err)
		b.sendError(chatID, "fetching today's plan", err)
		return
	}

	ex := planner.NormalizeExercises(today.DayPlan)
	view := planner.DayExerciseView{
		IsRestDay:     today.IsRestDay,
		Exercises:     ex.Exercises,
		TotalDuration: ex.TotalDuration,
		TotalCalories: ex.TotalCalories,
		Tips:          today.Tips,
	}
	text := formatDayMarkdown("Today", view, planner.AggregateNutrition(today.Diet)) + formatCompletion(today.Completion)
	b.sendDay(chatID, b.view.Snapshot().Today(), text)
}

// sendDay sends a day view with inline done/skip buttons.
func (b *Bot) sendDay(chatID int64, day planner.Weekday, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Done", "done|"+string(day)),
			tgbotapi.NewInlineKeyboardButtonData("⏭️ Skip", "skip|"+string(day)),
			tgbotapi.NewInlineKeyboardButtonData("🔽 Lighter", "reduce|"+string(day)),
		),
	)
	b.send(msg)
}

func (b *Bot) handleRegenerate(ctx context.Context, chatID int64, arg string) {
	weekNumber := 0
	if arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			b.sendMarkdown(chatID, "Usage: /regen [week number]")
			return
		}
		weekNumber = n
	}
	b.sendMarkdown(chatID, b.regenerate(ctx, weekNumber))
}

func (b *Bot) regenerate(ctx context.Context, weekNumber int) string {
	if err := b.view.Refresh(ctx); err != nil {
		log.Printf("Error loading plan: %v", err)
		return errorText("loading your plan", err)
	}
	snap := b.view.Snapshot()
	if snap.Monthly == nil {
		return "📭 There is no monthly plan to generate a week from."
	}
	if weekNumber == 0 {
		weekNumber = 1
		if snap.Plan != nil && snap.Plan.WeekNumber > 0 {
			weekNumber = snap.Plan.WeekNumber
		}
	}

	start := snap.Week.Start
	if _, err := b.coordinator.RegenerateWeek(ctx, snap.Monthly.ID, weekNumber, &start); err != nil {
		log.Printf("Error regenerating week: %v", err)
		return errorText("regenerating the week", err)
	}
	return fmt.Sprintf("✅ *Week %d regenerated.* Use /week to see it.", weekNumber) + b.refreshWarning()
}

func (b *Bot) handleAdjustDay(ctx context.Context, chatID int64, arg string, adjustment planapi.AdjustmentType) {
	day, ok := planner.ParseWeekday(arg)
	if !ok {
		b.sendMarkdown(chatID, fmt.Sprintf("Usage: /%s <weekday>", commandFor(adjustment)))
		return
	}
	b.sendMarkdown(chatID, b.adjustDay(ctx, day, adjustment))
}

func (b *Bot) adjustDay(ctx context.Context, day planner.Weekday, adjustment planapi.AdjustmentType) string {
	if err := b.view.Refresh(ctx); err != nil {
		return errorText("loading your plan", err)
	}
	snap := b.view.Snapshot()
	if snap.Plan == nil {
		return "📭 No plan for this week yet."
	}
	if err := b.coordinator.AdjustDay(ctx, snap.Plan.ID, day, adjustment, nil); err != nil {
		log.Printf("Error adjusting %s: %v", day, err)
		return errorText("adjusting "+string(day), err)
	}
	return fmt.Sprintf("✅ %s: %s", titleCase(string(day)), adjustmentLabel(adjustment)) + b.refreshWarning()
}

func (b *Bot) handleDone(ctx context.Context, chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		b.sendMarkdown(chatID, "Usage: /done <weekday> [adherence%]")
		return
	}
	day, ok := planner.ParseWeekday(fields[0])
	if !ok {
		b.sendMarkdown(chatID, "Usage: /done <weekday> [adherence%]")
		return
	}
	adherence := -1
	if len(fields) > 1 {
		n, err := strconv.Atoi(strings.TrimSuffix(fields[1], "%"))
		if err != nil || n < 0 || n > 100 {
			b.sendMarkdown(chatID, "Adherence must be a number between 0 and 100.")
			return
		}
		adherence = n
	}
	b.sendMarkdown(chatID, b.markDone(ctx, day, adherence))
}

func (b *Bot) markDone(ctx context.Context, day planner.Weekday, adherence int) string {
	if err := b.view.Refresh(ctx); err != nil {
		return errorText("loading your plan", err)
	}
	snap := b.view.Snapshot()
	if snap.Plan == nil {
		return "📭 No plan for this week yet."
	}

	done := true
	patch := planapi.CompletionPatch{ExerciseCompleted: &done}
	if adherence >= 0 {
		patch.DietAdherence = &adherence
	}
	if err := b.coordinator.MarkDayCompletion(ctx, snap.Plan.ID, day, patch); err != nil {
		log.Printf("Error marking %s done: %v", day, err)
		return errorText("saving your progress", err)
	}
	return fmt.Sprintf("💪 %s marked as done.", titleCase(string(day))) + b.refreshWarning()
}

func (b *Bot) handleAIAdjust(ctx context.Context, chatID int64, request, domain string) {
	if strings.TrimSpace(request) == "" {
		b.sendMarkdown(chatID, "Tell me what to change, e.g. `/diet less sugar at breakfast`")
		return
	}

	replyMsg := tgbotapi.NewMessage(chatID, "🤖 *Adjusting your plan...*")
	replyMsg.ParseMode = "Markdown"
	sentMsg, err := b.api.Send(replyMsg)
	if err != nil {
		log.Printf("Failed to send initial reply: %v", err)
		return
	}

	var finalText string
	snap, ok := b.loadPlanQuiet(ctx)
	switch {
	case !ok:
		finalText = "📭 No plan for this week yet. Use /regen to generate one."
	default:
		log.Printf("AI adjustment request (%s): %s", domainLabel(domain), request)
		var res *planapi.AIAdjustResult
		if domain == "" {
			res, err = b.coordinator.AIAdjustWeeklyPlan(ctx, snap.Plan.ID, request)
		} else {
			res, err = b.coordinator.AIAdjustDietPlan(ctx, snap.Plan.ID, request, domain)
		}
		if err != nil {
			log.Printf("Error adjusting plan: %v", err)
			finalText = errorText("adjusting your plan", err)
		} else {
			finalText = formatAIResultMarkdown(res)
			if res.Succeeded() {
				finalText += b.refreshWarning()
			}
		}
	}

	edit := tgbotapi.NewEditMessageText(chatID, sentMsg.MessageID, finalText)
	edit.ParseMode = "Markdown"
	b.send(edit)
}

// refreshWarning flags a change that was saved but could not be reloaded.
func (b *Bot) refreshWarning() string {
	if err := b.view.Snapshot().Err; err != nil {
		log.Printf("Plan changed but reload failed: %v", err)
		return "\n\n⚠️ Saved, but the updated plan could not be reloaded. Try /week again shortly."
	}
	return ""
}

func (b *Bot) loadPlanQuiet(ctx context.Context) (planview.Snapshot, bool) {
	if err := b.view.Refresh(ctx); err != nil {
		log.Printf("Error loading plan: %v", err)
		return planview.Snapshot{}, false
	}
	snap := b.view.Snapshot()
	return snap, snap.Plan != nil
}

func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	action, arg, _ := strings.Cut(query.Data, "|")

	// Answer callback to remove spinner
	b.api.Request(tgbotapi.NewCallback(query.ID, ""))

	var text string
	switch action {
	case "done":
		text = b.markDone(ctx, planner.Weekday(arg), -1)
	case "skip":
		text = b.adjustDay(ctx, planner.Weekday(arg), planapi.SkipExercise)
	case "reduce":
		text = b.adjustDay(ctx, planner.Weekday(arg), planapi.ReduceExercise)
	case "regen":
		text = b.regenerate(ctx, 0)
	default:
		log.Printf("Unknown callback data: %q", query.Data)
		return
	}

	if query.Message == nil {
		return
	}
	b.sendMarkdown(query.Message.Chat.ID, text)
}

func (b *Bot) handleMetricsRequest(msg *tgbotapi.Message) {
	if msg.From.ID != b.cfg.AdminTelegramID {
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "⛔ Access Denied: Admin only."))
		return
	}
	b.handleMetricsCommand(msg.Chat.ID)
}

func (b *Bot) handleMetricsCommand(chatID int64) {
	usage := b.metricsStore.GetDailyUsage(7)
	health := metrics.GetSysHealth()

	var sb strings.Builder
	sb.WriteString("📊 *Usage & Health Report*\n\n")

	sb.WriteString("🗓 *Recent Plan API Activity*\n")
	if len(usage) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range usage {
		sb.WriteString(fmt.Sprintf("• *%s*: %d calls, %d failed, avg %dms\n", d.Date, d.TotalCalls, d.TotalFailures, d.AvgLatencyMS))
	}

	sb.WriteString("\n🧠 *System Health*\n")
	sb.WriteString(fmt.Sprintf("• RAM: %dMB (Alloc) / %dMB (Sys)\n", health.AllocMB, health.SysMB))
	sb.WriteString(fmt.Sprintf("• Goroutines: %d\n", health.Goroutines))
	sb.WriteString(fmt.Sprintf("• Uptime: %s\n", health.Uptime))

	b.sendMarkdown(chatID, sb.String())
}

func (b *Bot) sendMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	b.send(msg)
}

func (b *Bot) sendError(chatID int64, action string, err error) {
	b.sendMarkdown(chatID, errorText(action, err))
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		log.Printf("Failed to send message: %v", err)
	}
}

func errorText(action string, err error) string {
	if errors.Is(err, adjust.ErrBusy) {
		return "⏳ Another change is still running, please try again in a moment."
	}
	safeErr := strings.ReplaceAll(err.Error(), "`", "'")
	return fmt.Sprintf("❌ *Error %s:*\n```\n%v\n```", action, safeErr)
}

func commandFor(t planapi.AdjustmentType) string {
	switch t {
	case planapi.SkipExercise:
		return "skip"
	case planapi.ReduceExercise:
		return "reduce"
	default:
		return "change"
	}
}

func adjustmentLabel(t planapi.AdjustmentType) string {
	switch t {
	case planapi.SkipExercise:
		return "exercise skipped."
	case planapi.ReduceExercise:
		return "exercise made lighter."
	default:
		return "exercise swapped."
	}
}

func domainLabel(domain string) string {
	if domain == "" {
		return "week"
	}
	return domain
}
