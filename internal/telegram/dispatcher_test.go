package telegram

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type countingHandler struct {
	mu      sync.Mutex
	handled []int
	panicOn int
}

func (h *countingHandler) HandleUpdate(_ context.Context, update tgbotapi.Update) {
	if update.UpdateID == h.panicOn {
		panic("boom")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, update.UpdateID)
}

func TestDispatcherHandlesUpdatesAndSurvivesPanics(t *testing.T) {
	handler := &countingHandler{panicOn: 2}
	dispatcher := NewDispatcher(context.Background(), handler, 4, nil)

	for id := 1; id <= 5; id++ {
		dispatcher.Dispatch(tgbotapi.Update{UpdateID: id})
	}
	dispatcher.Stop()

	if len(handler.handled) != 4 {
		t.Fatalf("expected 4 handled updates, got %v", handler.handled)
	}
}

type blockingHandler struct {
	active  atomic.Int32
	maxSeen atomic.Int32
	release chan struct{}
	started chan struct{}
}

func (h *blockingHandler) HandleUpdate(context.Context, tgbotapi.Update) {
	current := h.active.Add(1)
	for {
		seen := h.maxSeen.Load()
		if current <= seen || h.maxSeen.CompareAndSwap(seen, current) {
			break
		}
	}
	h.started <- struct{}{}
	<-h.release
	h.active.Add(-1)
}

func TestDispatcherRunsUpdatesConcurrently(t *testing.T) {
	handler := &blockingHandler{release: make(chan struct{}), started: make(chan struct{}, 2)}
	dispatcher := NewDispatcher(context.Background(), handler, 2, nil)

	dispatcher.Dispatch(tgbotapi.Update{UpdateID: 1})
	dispatcher.Dispatch(tgbotapi.Update{UpdateID: 2})
	<-handler.started
	<-handler.started
	close(handler.release)
	dispatcher.Stop()

	if handler.maxSeen.Load() != 2 {
		t.Fatalf("expected both updates in flight at once, saw %d", handler.maxSeen.Load())
	}
}

func TestUpdateKind(t *testing.T) {
	command := &tgbotapi.Message{Text: "/start", Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}}}
	testCases := map[string]tgbotapi.Update{
		"callback_query": {CallbackQuery: &tgbotapi.CallbackQuery{ID: "1"}},
		"command":        {Message: command},
		"message":        {Message: &tgbotapi.Message{Text: "dune"}},
		"other":          {},
	}
	for expected, update := range testCases {
		if got := UpdateKind(update); got != expected {
			t.Fatalf("UpdateKind = %q, want %q", got, expected)
		}
	}
}
