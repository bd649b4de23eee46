package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/designforge/internal/models"
	"github.com/digkill/designforge/internal/service"
	"github.com/digkill/designforge/internal/storage"
)

const historyLines = 10

var errReferenceNotImage = errors.New("reference not image")

// API is the part of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Services are the domain entry points the bot calls.
type Services struct {
	Users       *service.UserService
	Ledger      *service.Ledger
	Generations *service.GenerationService
	Variations  *service.VariationService
	Promos      *service.PromoService
}

type Bot struct {
	api        API
	token      string
	log        *slog.Logger
	svc        Services
	uploader   service.Uploader
	state      *StateManager
	httpClient *http.Client
}

// NewBot builds the bot. uploader may be nil, in which case reference photos are refused.
func NewBot(api API, token string, log *slog.Logger, svc Services, uploader service.Uploader) *Bot {
	return &Bot{
		api:        api,
		token:      token,
		log:        log,
		svc:        svc,
		uploader:   uploader,
		state:      NewStateManager(),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started")

	for {
		select {
		case update := <-updates:
			if update.Message != nil {
				b.handleMessage(ctx, update.Message)
			} else if update.CallbackQuery != nil {
				b.handleCallback(ctx, update.CallbackQuery)
			}
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

// Broadcast sends message to every user linked to Telegram.
func (b *Bot) Broadcast(ctx context.Context, message string) (int, int, error) {
	ids, err := b.svc.Users.ListTelegramIDs(ctx)
	if err != nil {
		return 0, 0, err
	}
	sent := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if _, err := b.api.Send(tgbotapi.NewMessage(id, message)); err != nil {
			b.log.Error("send broadcast", "chat_id", id, "err", err)
			continue
		}
		sent++
	}
	return sent, len(ids), nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if len(msg.Photo) > 0 || msg.Document != nil {
		if err := b.handleReferenceImage(ctx, msg); err != nil {
			if errors.Is(err, errReferenceNotImage) {
				b.sendText(msg.Chat.ID, "That is not an image. Send a photo or a PNG/JPEG/WebP file.")
			} else {
				b.log.Error("reference upload failed", "err", err)
				b.sendText(msg.Chat.ID, "Could not save the reference, please try again.")
			}
		}
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	session := b.state.Get(msg.Chat.ID)
	switch session.State {
	case StateAwaitingPrompt:
		b.handlePrompt(ctx, msg, session)
	case StateAwaitingStyle:
		b.sendText(msg.Chat.ID, "Pick a style with the buttons above first.")
	default:
		b.sendText(msg.Chat.ID, "Send /generate to start a new design.")
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	user, _, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		b.log.Error("ensure user", "err", err)
		b.sendText(msg.Chat.ID, "Something went wrong. Please try again.")
		return
	}

	switch msg.Command() {
	case "start":
		sub, err := b.svc.Ledger.Balance(ctx, user.ID)
		if err != nil {
			b.replyError(msg.Chat.ID, user.ID, "balance", err)
			return
		}
		text := fmt.Sprintf(
			"Hi, %s!\n\nYou have %d credits. Each variation costs 1 credit, upscaling 2 and background removal 1.\n\nCommands:\n/generate [count] - start a new design\n/colors #hex ... - set the palette\n/clearref - drop the reference photo\n/balance - show credits\n/history - recent credit activity\n/designs - your latest designs\n/promo <code> - redeem a promo code",
			user.DisplayName, sub.RemainingCredits,
		)
		b.sendText(msg.Chat.ID, text)
	case "generate":
		b.promptStyleSelection(msg.Chat.ID, msg.CommandArguments())
	case "colors":
		b.handleColors(msg)
	case "clearref":
		b.state.ClearReference(msg.Chat.ID)
		b.sendText(msg.Chat.ID, "Reference cleared.")
	case "balance":
		sub, err := b.svc.Ledger.Balance(ctx, user.ID)
		if err != nil {
			b.replyError(msg.Chat.ID, user.ID, "balance", err)
			return
		}
		b.sendText(msg.Chat.ID, fmt.Sprintf("Plan: %s\nCredits: %d of %d monthly", sub.PlanTier, sub.RemainingCredits, sub.MonthlyCredits))
	case "history":
		entries, err := b.svc.Ledger.History(ctx, user.ID, historyLines)
		if err != nil {
			b.replyError(msg.Chat.ID, user.ID, "history", err)
			return
		}
		b.sendText(msg.Chat.ID, formatHistory(entries))
	case "designs":
		designs, err := b.svc.Generations.Library(ctx, user.ID, historyLines)
		if err != nil {
			b.replyError(msg.Chat.ID, user.ID, "designs", err)
			return
		}
		b.sendText(msg.Chat.ID, formatLibrary(designs))
	case "promo":
		code := strings.TrimSpace(msg.CommandArguments())
		if code == "" {
			b.sendText(msg.Chat.ID, "Usage: /promo CODE")
			return
		}
		bonus, balance, err := b.svc.Promos.Apply(ctx, user.ID, code)
		if err != nil {
			b.replyError(msg.Chat.ID, user.ID, "promo", err)
			return
		}
		b.sendText(msg.Chat.ID, fmt.Sprintf("Promo code applied! +%d credits, balance %d.", bonus, balance))
	default:
		b.sendText(msg.Chat.ID, "Unknown command. Use /generate.")
	}
}

func (b *Bot) handleColors(msg *tgbotapi.Message) {
	fields := strings.Fields(strings.ReplaceAll(msg.CommandArguments(), ",", " "))
	if len(fields) == 0 {
		b.sendText(msg.Chat.ID, "Usage: /colors #ff00aa #222222 (up to 6)")
		return
	}
	session := b.state.Get(msg.Chat.ID)
	session.Colors = fields
	b.state.Set(msg.Chat.ID, session)
	b.sendText(msg.Chat.ID, "Palette set: "+strings.Join(fields, " "))
}

func (b *Bot) promptStyleSelection(chatID int64, args string) {
	session := b.state.Get(chatID)
	session.State = StateAwaitingStyle
	session.Count = defaultVariationCount
	if n, err := strconv.Atoi(strings.TrimSpace(args)); err == nil {
		session.Count = n
	}
	b.state.Set(chatID, session)

	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, style := range models.StylePresets() {
		label := strings.ToUpper(string(style[:1])) + strings.ToLower(string(style[1:]))
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, "st:"+string(style)))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	msg := tgbotapi.NewMessage(chatID, "Choose a style. You can send one reference photo before the prompt.")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send keyboard", "err", err)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	kind, value, ok := strings.Cut(cb.Data, ":")
	if !ok {
		b.ack(cb.ID, "Unknown choice")
		return
	}

	if kind == "st" {
		session := b.state.Get(chatID)
		session.State = StateAwaitingPrompt
		session.Style = value
		b.state.Set(chatID, session)
		b.ack(cb.ID, "Style selected")
		b.sendText(chatID, "Now describe the design you want.")
		return
	}

	action, ok := callbackActions[kind]
	if !ok {
		b.ack(cb.ID, "Unknown choice")
		return
	}
	generationID, rawIndex, _ := strings.Cut(value, ":")
	index, err := strconv.Atoi(rawIndex)
	session := b.state.Get(chatID)
	if err != nil || session.Last == nil || generationID != session.Last.GenerationID || index < 0 || index >= len(session.Last.Variations) {
		b.ack(cb.ID, "This design has expired")
		return
	}
	b.ack(cb.ID, "Working on it")

	user, _, err := b.ensureUser(ctx, cb.From, chatID)
	if err != nil {
		b.log.Error("ensure user callback", "err", err)
		return
	}
	variation := session.Last.Variations[index]
	result, err := b.svc.Variations.Apply(ctx, user.ID, service.ActionRequest{
		Action:       string(action),
		DesignID:     session.Last.DesignID,
		GenerationID: session.Last.GenerationID,
		VariationID:  variation.ID,
		ImageURL:     variation.ImageURL,
	})
	if err != nil {
		b.replyError(chatID, user.ID, "variation_action", err)
		return
	}

	text := result.Message
	if result.CreditsRemaining != nil {
		text = fmt.Sprintf("%s Credits left: %d.", text, *result.CreditsRemaining)
	}
	if result.ImageURL != "" && result.ImageURL != variation.ImageURL {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(result.ImageURL))
		photo.Caption = text
		if _, err := b.api.Send(photo); err != nil {
			b.log.Error("send image", "err", err)
		}
		return
	}
	b.sendText(chatID, text)
}

var callbackActions = map[string]service.VariationAction{
	"up": service.ActionUpscale,
	"rb": service.ActionRemoveBackground,
	"sv": service.ActionSave,
}

// variationCallback encodes a button press as kind:generationId:index so a
// button under an older generation cannot act on the newest one.
func variationCallback(kind, generationID string, index int) string {
	return fmt.Sprintf("%s:%s:%d", kind, generationID, index)
}

func (b *Bot) handlePrompt(ctx context.Context, msg *tgbotapi.Message, session *Session) {
	user, _, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		b.log.Error("ensure user prompt", "err", err)
		return
	}

	req := service.GenerationRequest{
		Prompt:            msg.Text,
		StylePreset:       session.Style,
		Colors:            session.Colors,
		ReferenceImageURL: session.ReferenceURL,
		VariationCount:    session.Count,
	}

	b.sendText(msg.Chat.ID, "Generating, this can take a minute or two.")

	result, err := b.svc.Generations.Generate(ctx, user.ID, req)
	if err != nil {
		if service.CodeOf(err) == service.CodeValidation {
			b.sendText(msg.Chat.ID, service.PublicMessage(err))
			return
		}
		b.replyError(msg.Chat.ID, user.ID, "generate", err)
		b.state.Reset(msg.Chat.ID)
		return
	}

	session.Last = &LastGeneration{
		DesignID:     result.DesignID,
		GenerationID: result.GenerationID,
		Variations:   result.Results,
	}
	session.State = StateIdle
	session.Style = ""
	b.state.Set(msg.Chat.ID, session)

	b.deliverVariations(msg.Chat.ID, result)
}

func (b *Bot) deliverVariations(chatID int64, result *service.GenerationResult) {
	for i, v := range result.Results {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(v.ImageURL))
		photo.Caption = fmt.Sprintf("Variation %d of %d", i+1, len(result.Results))
		photo.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Upscale (%d)", service.ActionUpscale.Cost()), variationCallback("up", result.GenerationID, i)),
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Remove BG (%d)", service.ActionRemoveBackground.Cost()), variationCallback("rb", result.GenerationID, i)),
			tgbotapi.NewInlineKeyboardButtonData("Save", variationCallback("sv", result.GenerationID, i)),
		))
		if _, err := b.api.Send(photo); err != nil {
			b.log.Error("send image", "err", err)
		}
	}
	b.sendText(chatID, fmt.Sprintf("Credits left: %d.", result.CreditsRemaining))
}

func (b *Bot) handleReferenceImage(ctx context.Context, msg *tgbotapi.Message) error {
	if b.uploader == nil {
		b.sendText(msg.Chat.ID, "Reference photos are not enabled on this bot.")
		return nil
	}

	var fileID string
	switch {
	case len(msg.Photo) > 0:
		fileID = msg.Photo[len(msg.Photo)-1].FileID
	case msg.Document != nil:
		if mt := strings.ToLower(msg.Document.MimeType); mt != "" && !strings.HasPrefix(mt, "image/") {
			return errReferenceNotImage
		}
		fileID = msg.Document.FileID
	default:
		return nil
	}

	data, contentType, err := b.downloadFile(ctx, fileID)
	if err != nil {
		return err
	}
	url, err := b.uploader.Upload(ctx, storage.FolderReferences, data, contentType)
	if err != nil {
		return err
	}

	session := b.state.Get(msg.Chat.ID)
	session.ReferenceURL = url
	b.state.Set(msg.Chat.ID, session)

	b.sendText(msg.Chat.ID, "Reference saved. It will be used for your next generation.")
	return nil
}

func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, "", fmt.Errorf("get file: %w", err)
	}
	if file.FilePath == "" {
		return nil, "", fmt.Errorf("file path empty")
	}
	url := file.Link(b.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("telegram file status: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read file body: %w", err)
	}
	ct, err := normalizeImageContentType(resp.Header.Get("Content-Type"), body)
	if err != nil {
		return nil, "", err
	}
	return body, ct, nil
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User, chatID int64) (*models.User, bool, error) {
	telegramID := chatID
	name := ""
	if from != nil {
		telegramID = from.ID
		name = strings.TrimSpace(from.FirstName + " " + from.LastName)
		if name == "" {
			name = from.UserName
		}
	}
	return b.svc.Users.EnsureTelegram(ctx, telegramID, name)
}

// replyError shows the public message and logs unexpected failures.
func (b *Bot) replyError(chatID int64, userID, op string, err error) {
	text := service.PublicMessage(err)
	switch service.CodeOf(err) {
	case service.CodeInsufficientCredits:
		text += " Redeem a code with /promo to top up."
	case service.CodeServerError:
		b.log.Error("telegram request failed", "op", op, "user_id", userID, "err", err)
	}
	b.sendText(chatID, text)
}

func (b *Bot) ack(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Error("callback ack", "err", err)
	}
}

func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send text", "err", err)
	}
}

func formatHistory(entries []models.CreditUsageEntry) string {
	if len(entries) == 0 {
		return "No credit activity yet."
	}
	var sb strings.Builder
	sb.WriteString("Recent activity:")
	for _, e := range entries {
		fmt.Fprintf(&sb, "\n%s  %+d  %s (balance %d)", e.CreatedAt.Format("2006-01-02"), e.Delta, e.Description, e.BalanceAfter)
	}
	return sb.String()
}

func formatLibrary(designs []models.Design) string {
	if len(designs) == 0 {
		return "No designs yet. Use /generate."
	}
	var sb strings.Builder
	sb.WriteString("Your designs:")
	for _, d := range designs {
		fmt.Fprintf(&sb, "\n%s  %s  %s v%d", d.CreatedAt.Format("2006-01-02"), d.Title, strings.ToLower(string(d.Status)), d.Version)
	}
	return sb.String()
}

func normalizeImageContentType(headerCT string, data []byte) (string, error) {
	ct := strings.ToLower(strings.TrimSpace(headerCT))
	if idx := strings.Index(ct, ";"); idx > 0 {
		ct = ct[:idx]
	}
	if ct == "" || ct == "application/octet-stream" || !strings.HasPrefix(ct, "image/") {
		if len(data) > 0 {
			ct = http.DetectContentType(data)
			if idx := strings.Index(ct, ";"); idx > 0 {
				ct = ct[:idx]
			}
		}
	}

	switch ct {
	case "image/jpeg", "image/jpg":
		return "image/jpeg", nil
	case "image/png":
		return "image/png", nil
	case "image/webp":
		return "image/webp", nil
	default:
		return "", errReferenceNotImage
	}
}
