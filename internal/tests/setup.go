package tests

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sync"
)

// TruncateAuthTables truncates auth-related tables for a clean test state.
func TruncateAuthTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, "TRUNCATE TABLE email_tokens, login_tokens, users")
	if err != nil {
		return fmt.Errorf("truncate auth tables: %w", err)
	}
	return nil
}

// Message is one email captured by CaptureSender
type Message struct {
	To      string
	Subject string
	Body    string
}

var codePattern = regexp.MustCompile(`<strong>([0-9a-f]+)</strong>`)

// Code returns the pass-code shown in the message body
func (m Message) Code() string {
	match := codePattern.FindStringSubmatch(m.Body)
	if match == nil {
		return ""
	}
	return match[1]
}

// CaptureSender is a mail.Sender that keeps every message in memory
type CaptureSender struct {
	mu       sync.Mutex
	messages []Message
	fail     bool
}

func (c *CaptureSender) Send(_ context.Context, to, subject, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return fmt.Errorf("mail relay unavailable")
	}
	c.messages = append(c.messages, Message{To: to, Subject: subject, Body: body})
	return nil
}

// SetFailing makes every following Send fail
func (c *CaptureSender) SetFailing(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = fail
}

// Last returns the newest message sent to addr
func (c *CaptureSender) Last(addr string) (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].To == addr {
			return c.messages[i], true
		}
	}
	return Message{}, false
}

// Count returns how many messages were sent
func (c *CaptureSender) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}
