// Package session keeps the per-chat wizard state and serializes updates
// for the same chat.
package session

import (
	"context"
	"time"
)

// Step is the position of a chat in the wizard.
type Step string

const (
	StepIdle         Step = ""
	StepAlbumConfirm Step = "ALBUM_CONFIRM"
	StepAskTitle     Step = "ASK_TITLE"
	StepAskFabric    Step = "ASK_FABRIC"
	StepAskSizes     Step = "ASK_SIZES"
	StepAskPrice     Step = "ASK_PRICE"
	StepPublishing   Step = "PUBLISHING"
)

// Session is the volatile state of one chat.
type Session struct {
	ChatID int64 `json:"chatId"`
	UserID int64 `json:"userId"`
	Step   Step  `json:"step"`

	Title  string   `json:"title,omitempty"`
	Fabric string   `json:"fabric,omitempty"`
	Sizes  []string `json:"sizes,omitempty"`
	Price  string   `json:"price,omitempty"`

	// Pending holds the platform file ids of the product being built.
	Pending []string `json:"pending,omitempty"`
	// Uploaded holds asset paths committed but not yet published.
	Uploaded []string `json:"uploaded,omitempty"`
	// RequestID keys the create call so that a retried publish cannot add
	// the product twice.
	RequestID string `json:"requestId,omitempty"`

	AlbumID string `json:"albumId,omitempty"`
	// Queue holds the photos still waiting for their own wizard after an album split.
	Queue      []string `json:"queue,omitempty"`
	QueueTotal int      `json:"queueTotal,omitempty"`
	QueueIndex int      `json:"queueIndex,omitempty"`

	FabricPage int `json:"fabricPage,omitempty"`
	// PromptMessageID is the message carrying the current inline keyboard.
	PromptMessageID int `json:"promptMessageId,omitempty"`

	LastActivity time.Time `json:"lastActivity"`
}

// New returns an idle session for chatID.
func New(chatID int64) *Session {
	return &Session{ChatID: chatID, Step: StepIdle}
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	c.Sizes = cloneStrings(s.Sizes)
	c.Pending = cloneStrings(s.Pending)
	c.Uploaded = cloneStrings(s.Uploaded)
	c.Queue = cloneStrings(s.Queue)
	return &c
}

// ClearProduct drops the fields collected for the current product and
// returns to idle. Album split progress is kept.
func (s *Session) ClearProduct() {
	s.Step = StepIdle
	s.Title = ""
	s.Fabric = ""
	s.Sizes = nil
	s.Price = ""
	s.Pending = nil
	s.Uploaded = nil
	s.RequestID = ""
	s.FabricPage = 0
	s.PromptMessageID = 0
}

// NextQueued moves the next split photo into Pending.
// It reports false when the queue is empty.
func (s *Session) NextQueued() bool {
	if len(s.Queue) == 0 {
		s.QueueTotal, s.QueueIndex, s.AlbumID = 0, 0, ""
		return false
	}
	s.Pending = []string{s.Queue[0]}
	s.Queue = s.Queue[1:]
	s.QueueIndex++
	s.Step = StepAskTitle
	return true
}

// ToggleSize adds size to the selection or removes it if already selected.
func (s *Session) ToggleSize(size string) {
	for i, v := range s.Sizes {
		if v == size {
			s.Sizes = append(s.Sizes[:i:i], s.Sizes[i+1:]...)
			return
		}
	}
	s.Sizes = append(s.Sizes, size)
}

// HasSize reports whether size is selected.
func (s *Session) HasSize(size string) bool {
	for _, v := range s.Sizes {
		if v == size {
			return true
		}
	}
	return false
}

// Store persists sessions with an inactivity expiry.
type Store interface {
	// Get returns the chat's session or a fresh idle one.
	Get(ctx context.Context, chatID int64) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Reset(ctx context.Context, chatID int64) error

	// AcquireLock waits up to timeout for exclusive access to the chat. The
	// returned token identifies the holder; the lock stays held until
	// ReleaseLock is called with that token.
	AcquireLock(ctx context.Context, chatID int64, timeout time.Duration) (token string, ok bool, err error)
	// ReleaseLock frees the lock only if token still holds it.
	ReleaseLock(ctx context.Context, chatID int64, token string) error

	// MarkUpdate records an update id and reports whether it was new.
	MarkUpdate(ctx context.Context, updateID int) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}

func cloneStrings(v []string) []string {
	if v == nil {
		return nil
	}
	return append([]string(nil), v...)
}
