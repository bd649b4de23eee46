package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/digkill/designforge/internal/events"
	"github.com/digkill/designforge/internal/imagegen"
	"github.com/digkill/designforge/internal/models"
	"github.com/digkill/designforge/internal/repository"
	"github.com/digkill/designforge/internal/service"
	"github.com/digkill/designforge/internal/testsupport"
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	failFor  int64
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok && f.failFor != 0 && m.ChatID == f.failFor {
		return tgbotapi.Message{}, errors.New("blocked")
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error) {
	return tgbotapi.File{}, errors.New("not available")
}

func (f *fakeAPI) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeAPI) StopReceivingUpdates() {}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeAPI) photos() []tgbotapi.PhotoConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.PhotoConfig
	for _, c := range f.sent {
		if p, ok := c.(tgbotapi.PhotoConfig); ok {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeAPI) lastText() string {
	texts := f.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

func newTestBot(t *testing.T) (*Bot, *fakeAPI, *repository.Store) {
	t.Helper()
	store := testsupport.MustOpenStore(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := service.NewLedger(store, log, 50)
	svc := Services{
		Users:       service.NewUserService(store),
		Ledger:      ledger,
		Generations: service.NewGenerationService(store, ledger, imagegen.NewStub(), events.Noop{}, log),
		Variations: service.NewVariationService(store, ledger, imagegen.NewURLTransformer(), events.Noop{}, log, service.ProductDefaults{
			Price:    decimal.RequireFromString("29.99"),
			Currency: "USD",
		}),
		Promos: service.NewPromoService(store, ledger, 100),
	}
	api := &fakeAPI{}
	return NewBot(api, "token", log, svc, nil), api, store
}

func command(chatID int64, text string) *tgbotapi.Message {
	name, _, _ := strings.Cut(text, " ")
	return &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: chatID},
		From:     &tgbotapi.User{ID: chatID, FirstName: "Ann"},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
		Date:     int(time.Now().Unix()),
	}
}

func callback(chatID int64, data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "cb-" + data,
		From:    &tgbotapi.User{ID: chatID, FirstName: "Ann"},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    data,
	}
}

func TestStartCreatesUserAndShowsBalance(t *testing.T) {
	bot, api, store := newTestBot(t)
	ctx := context.Background()

	bot.handleMessage(ctx, command(42, "/start"))

	if got := api.lastText(); !strings.Contains(got, "Hi, Ann!") || !strings.Contains(got, "50 credits") {
		t.Fatalf("start reply = %q", got)
	}
	user, err := store.Users.FindByTelegramID(ctx, 42)
	if err != nil || user == nil {
		t.Fatalf("FindByTelegramID = %v, %v", user, err)
	}
}

func TestGenerateFlowAndSave(t *testing.T) {
	bot, api, store := newTestBot(t)
	ctx := context.Background()

	bot.handleMessage(ctx, command(7, "/generate 3"))
	if bot.state.Get(7).State != StateAwaitingStyle {
		t.Fatalf("state after /generate = %v", bot.state.Get(7).State)
	}

	bot.handleMessage(ctx, &tgbotapi.Message{Text: "cat", Chat: &tgbotapi.Chat{ID: 7}, From: &tgbotapi.User{ID: 7}})
	if got := api.lastText(); !strings.Contains(got, "Pick a style") {
		t.Fatalf("reply before style = %q", got)
	}

	bot.handleCallback(ctx, callback(7, "st:ANIME"))
	session := bot.state.Get(7)
	if session.State != StateAwaitingPrompt || session.Style != "ANIME" {
		t.Fatalf("session after style = %+v", session)
	}

	bot.handleMessage(ctx, &tgbotapi.Message{Text: "a fox riding a skateboard", Chat: &tgbotapi.Chat{ID: 7}, From: &tgbotapi.User{ID: 7, FirstName: "Ann"}})
	photos := api.photos()
	if len(photos) != 3 {
		t.Fatalf("photos = %d, want 3", len(photos))
	}
	if got := api.lastText(); got != "Credits left: 47." {
		t.Fatalf("after generate = %q", got)
	}

	session = bot.state.Get(7)
	if session.State != StateIdle || session.Last == nil || len(session.Last.Variations) != 3 {
		t.Fatalf("session after generate = %+v", session)
	}
	saveData := "sv:" + session.Last.GenerationID + ":0"
	markup, ok := photos[0].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || len(markup.InlineKeyboard[0]) != 3 || *markup.InlineKeyboard[0][2].CallbackData != saveData {
		t.Fatalf("markup = %+v", photos[0].ReplyMarkup)
	}
	if len(saveData) > 64 {
		t.Fatalf("callback data %q exceeds 64 bytes", saveData)
	}

	bot.handleCallback(ctx, callback(7, saveData))
	if got := api.lastText(); got != "Saved to your library." {
		t.Fatalf("save reply = %q", got)
	}
	user, _ := store.Users.FindByTelegramID(ctx, 7)
	if got := testsupport.Balance(t, store, user.ID); got != 47 {
		t.Fatalf("balance = %d, want 47", got)
	}
}

func TestCallbackForUnknownVariationExpires(t *testing.T) {
	bot, api, _ := newTestBot(t)
	ctx := context.Background()

	for _, data := range []string{"up:0", "zz:1", "nocolon"} {
		bot.handleCallback(ctx, callback(9, data))
	}
	if len(api.requests) != 3 {
		t.Fatalf("acks = %d, want 3", len(api.requests))
	}
	ack, ok := api.requests[0].(tgbotapi.CallbackConfig)
	if !ok || ack.Text != "This design has expired" {
		t.Fatalf("first ack = %+v", api.requests[0])
	}
	if len(api.texts()) != 0 {
		t.Fatalf("unexpected messages: %v", api.texts())
	}
}

func TestUpscaleWithoutCreditsSuggestsPromo(t *testing.T) {
	bot, api, store := newTestBot(t)
	ctx := context.Background()

	user, _, err := bot.svc.Users.EnsureTelegram(ctx, 11, "Bo")
	if err != nil {
		t.Fatalf("EnsureTelegram: %v", err)
	}
	if err := store.Subscriptions.CreateIfMissing(ctx, models.Subscription{
		UserID:           user.ID,
		PlanTier:         models.PlanFree,
		MonthlyCredits:   models.PlanFree.MonthlyCredits(),
		RemainingCredits: 1,
	}); err != nil {
		t.Fatalf("CreateIfMissing: %v", err)
	}
	design, generation := testsupport.SeedDesign(t, store, user.ID, "Fox", "https://img.test/fox.png")
	bot.state.Set(11, &Session{Last: &LastGeneration{
		DesignID:     design.ID,
		GenerationID: generation.ID,
		Variations:   []service.VariationResult{{ID: generation.ID + "-1", ImageURL: "https://img.test/fox.png"}},
	}})

	bot.handleCallback(ctx, callback(11, variationCallback("up", generation.ID, 0)))
	if got := api.lastText(); !strings.Contains(got, "/promo") {
		t.Fatalf("reply = %q", got)
	}
	if got := testsupport.Balance(t, store, user.ID); got != 1 {
		t.Fatalf("balance = %d, want 1", got)
	}
}

func TestButtonFromOlderGenerationExpires(t *testing.T) {
	bot, api, store := newTestBot(t)
	ctx := context.Background()

	user, _, err := bot.svc.Users.EnsureTelegram(ctx, 12, "Cy")
	if err != nil {
		t.Fatalf("EnsureTelegram: %v", err)
	}
	if _, err := bot.svc.Ledger.Balance(ctx, user.ID); err != nil {
		t.Fatalf("Balance: %v", err)
	}
	first, firstGen := testsupport.SeedDesign(t, store, user.ID, "Owl", "https://img.test/owl.png")
	second, secondGen := testsupport.SeedDesign(t, store, user.ID, "Bat", "https://img.test/bat.png")
	bot.state.Set(12, &Session{Last: &LastGeneration{
		DesignID:     second.ID,
		GenerationID: secondGen.ID,
		Variations:   []service.VariationResult{{ID: secondGen.ID + "-1", ImageURL: "https://img.test/bat.png"}},
	}})

	bot.handleCallback(ctx, callback(12, variationCallback("up", firstGen.ID, 0)))

	ack, ok := api.requests[len(api.requests)-1].(tgbotapi.CallbackConfig)
	if !ok || ack.Text != "This design has expired" {
		t.Fatalf("ack = %+v", api.requests[len(api.requests)-1])
	}
	if len(api.texts()) != 0 || len(api.photos()) != 0 {
		t.Fatalf("unexpected replies: %v", api.texts())
	}
	if got := testsupport.Balance(t, store, user.ID); got != 50 {
		t.Fatalf("balance = %d, want 50", got)
	}
	for _, id := range []string{first.ID, second.ID} {
		d, _ := store.Designs.GetByID(ctx, id)
		if d.Version != 1 {
			t.Fatalf("design %s version = %d, want 1", d.Title, d.Version)
		}
	}
}

func TestDesignsCommandListsLibrary(t *testing.T) {
	bot, api, store := newTestBot(t)
	ctx := context.Background()

	bot.handleMessage(ctx, command(13, "/designs"))
	if got := api.lastText(); got != "No designs yet. Use /generate." {
		t.Fatalf("empty library = %q", got)
	}

	user, err := store.Users.FindByTelegramID(ctx, 13)
	if err != nil || user == nil {
		t.Fatalf("FindByTelegramID = %v, %v", user, err)
	}
	testsupport.SeedDesign(t, store, user.ID, "Lynx", "https://img.test/lynx.png")
	bot.handleMessage(ctx, command(13, "/designs"))
	if got := api.lastText(); !strings.Contains(got, "Lynx  generated v1") {
		t.Fatalf("library = %q", got)
	}
}

func TestColorsAndClearReference(t *testing.T) {
	bot, api, _ := newTestBot(t)
	ctx := context.Background()

	bot.handleMessage(ctx, command(5, "/colors #ff00aa, #222222"))
	if got := bot.state.Get(5).Colors; len(got) != 2 || got[0] != "#ff00aa" {
		t.Fatalf("colors = %v", got)
	}

	session := bot.state.Get(5)
	session.ReferenceURL = "https://cdn.test/ref.png"
	bot.state.Set(5, session)
	bot.handleMessage(ctx, command(5, "/clearref"))
	if got := bot.state.Get(5).ReferenceURL; got != "" {
		t.Fatalf("reference = %q", got)
	}
	if got := api.lastText(); got != "Reference cleared." {
		t.Fatalf("reply = %q", got)
	}
}

func TestPhotoWithoutStorageIsRefused(t *testing.T) {
	bot, api, _ := newTestBot(t)
	bot.handleMessage(context.Background(), &tgbotapi.Message{
		Chat:  &tgbotapi.Chat{ID: 3},
		Photo: []tgbotapi.PhotoSize{{FileID: "f1"}},
	})
	if got := api.lastText(); !strings.Contains(got, "not enabled") {
		t.Fatalf("reply = %q", got)
	}
}

func TestBroadcast(t *testing.T) {
	bot, api, _ := newTestBot(t)
	ctx := context.Background()
	for _, id := range []int64{100, 200, 300} {
		if _, _, err := bot.svc.Users.EnsureTelegram(ctx, id, ""); err != nil {
			t.Fatalf("EnsureTelegram: %v", err)
		}
	}
	api.failFor = 200

	sent, total, err := bot.Broadcast(ctx, "hello")
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if sent != 2 || total != 3 {
		t.Fatalf("sent=%d total=%d", sent, total)
	}
}

func TestNormalizeImageContentType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	tests := []struct {
		header string
		data   []byte
		want   string
		err    bool
	}{
		{header: "image/jpg", want: "image/jpeg"},
		{header: "image/webp; charset=binary", want: "image/webp"},
		{header: "application/octet-stream", data: png, want: "image/png"},
		{header: "", data: []byte("plain text"), err: true},
		{header: "image/gif", err: true},
	}
	for _, tt := range tests {
		got, err := normalizeImageContentType(tt.header, tt.data)
		if tt.err {
			if !errors.Is(err, errReferenceNotImage) {
				t.Fatalf("normalize(%q) err = %v", tt.header, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("normalize(%q) = %q, %v; want %q", tt.header, got, err, tt.want)
		}
	}
}

func TestFormatHistory(t *testing.T) {
	if got := formatHistory(nil); got != "No credit activity yet." {
		t.Fatalf("empty history = %q", got)
	}
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	got := formatHistory([]models.CreditUsageEntry{
		{Delta: -2, BalanceAfter: 48, Description: "Generated 2 variations", CreatedAt: at},
		{Delta: 100, BalanceAfter: 150, Description: "Promo code LAUNCH", CreatedAt: at},
	})
	if !strings.Contains(got, "2026-03-01  -2  Generated 2 variations (balance 48)") || !strings.Contains(got, "+100") {
		t.Fatalf("history = %q", got)
	}
}
