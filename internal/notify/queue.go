// Package notify implements the outbound Telegram notification queue. Messages are queued rather
// than sent inline so a flaky Telegram API never blocks the selector loop that enqueues them; a
// message that sits in the queue past a short threshold is annotated as delayed so the reader
// knows it's stale news. The queue is strictly FIFO and bounded - a caller that floods it faster
// than it can drain is a configuration bug, not a condition to degrade gracefully under, so
// exceeding the bound is fatal.
package notify

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

	"github.com/simonmicro/cloudflare-cname-switcher/internal/constants"
)

const me = "notify"

// delayedMessageFormat matches the exact annotation the Telegram integration has always used: the
// original text, a blank line, then an italic MarkdownV2 note naming the delay.
const delayedMessageFormat = "%s\n\n_This is a delayed message from `%s`._"

// escapeChars are the MarkdownV2 characters Telegram requires literal text to escape.
const escapeChars = "_*[]()~`>#+-=|{}."

// Escape backslash-escapes every MarkdownV2-significant character in text so it renders as plain
// text rather than being interpreted as formatting.
func Escape(text string) string {
	var b []byte
	for _, r := range text {
		if indexByte(escapeChars, byte(r)) >= 0 && r < 128 {
			b = append(b, '\\')
		}
		b = append(b, string(r)...)
	}
	return string(b)
}

func indexByte(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

// Sender is the subset of tgbotapi.BotAPI used here, so tests can substitute a mock instead of
// calling the real Telegram API.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type entry struct {
	text     string
	queuedAt time.Time
}

// Queue is a bounded FIFO of outbound Telegram messages.
type Queue struct {
	mu     sync.Mutex
	items  *list.List
	maxLen int
	delay  time.Duration

	chatID int64
	sender Sender

	// OnSendDuration, when set, is invoked after every attempted Telegram API call with how long
	// it took. cmd/cfswitchd wires this to the telegram_send_seconds gauge.
	OnSendDuration func(time.Duration)
	// OnQueueLength, when set, is invoked whenever the queue length changes. cmd/cfswitchd wires
	// this to the telegram_queue_amount gauge.
	OnQueueLength func(int)
}

// New builds a Queue that sends through sender into chatID.
func New(sender Sender, chatID int64) *Queue {
	c := constants.Get()
	delay, err := time.ParseDuration(c.DelayedMessageAfter)
	if err != nil {
		// DelayedMessageAfter is a compiled-in constant; a parse failure here is a programmer
		// error, not a runtime condition.
		panic(fmt.Sprintf("%s: invalid DelayedMessageAfter constant %q: %v", me, c.DelayedMessageAfter, err))
	}
	return &Queue{
		items:  list.New(),
		maxLen: c.NotificationMaxQueue,
		delay:  delay,
		chatID: chatID,
		sender: sender,
	}
}

func (q *Queue) reportLength() {
	if q.OnQueueLength != nil {
		q.OnQueueLength(q.items.Len())
	}
}

// HasPending reports whether any message is still queued.
func (q *Queue) HasPending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len() > 0
}

// QueueAndSend appends text to the queue and immediately attempts to drain it. Queueing happens
// unconditionally; draining may leave text (and anything queued before it) in place if sending
// fails.
func (q *Queue) QueueAndSend(text string) {
	q.mu.Lock()
	if q.items.Len() >= q.maxLen {
		q.mu.Unlock()
		panic(fmt.Sprintf("%s: queue exceeded its maximum length of %d", me, q.maxLen))
	}
	q.items.PushBack(entry{text: text, queuedAt: time.Now()})
	q.reportLength()
	q.mu.Unlock()

	q.Send()
}

// Send drains the queue front-to-back, stopping at the first failure. A failed send leaves its
// entry (and everything behind it) queued for the next call - there is no in-call retry, since the
// selector's periodic drain cadence already provides one.
func (q *Queue) Send() {
	for {
		q.mu.Lock()
		front := q.items.Front()
		if front == nil {
			q.mu.Unlock()
			return
		}
		e := front.Value.(entry)
		q.mu.Unlock()

		text := e.text
		if elapsed := time.Since(e.queuedAt); elapsed > q.delay {
			text = fmt.Sprintf(delayedMessageFormat, text, e.queuedAt.Format(time.RFC3339))
		}

		msg := tgbotapi.NewMessage(q.chatID, text)
		msg.ParseMode = "MarkdownV2"

		start := time.Now()
		_, err := q.sender.Send(msg)
		if q.OnSendDuration != nil {
			q.OnSendDuration(time.Since(start))
		}
		if err != nil {
			return
		}

		q.mu.Lock()
		q.items.Remove(front)
		q.reportLength()
		q.mu.Unlock()
	}
}
