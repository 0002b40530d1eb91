// Package notification renders and delivers the staff notifications raised by
// the triage workflow. The worker process feeds it jobs consumed from the job
// queue.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/jobs"
)

// Channel is the delivery channel of a notification.
type Channel string

const (
	ChannelPager Channel = "pager"
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// Notification is one rendered, delivered (or failed) message.
type Notification struct {
	ID        string     `json:"id"`
	Job       string     `json:"job"`
	JobID     string     `json:"jobId"`
	Channel   Channel    `json:"channel"`
	Recipient string     `json:"recipient"`
	Subject   string     `json:"subject"`
	Body      string     `json:"body"`
	Priority  string     `json:"priority"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	SentAt    *time.Time `json:"sentAt,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Sender delivers a rendered notification.
type Sender interface {
	Send(ctx context.Context, n *Notification) error
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template defines how a job is turned into a message. Templates are keyed by
// job name.
type Template struct {
	ID       string  `json:"id"`
	Subject  string  `json:"subject"`
	Body     string  `json:"body"`
	Channel  Channel `json:"channel"`
	Priority string  `json:"priority"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the ER templates registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:       jobs.JobTriageShift,
			Subject:  "Triage {{direction}}: {{patientName}} now {{toLabel}}",
			Body:     "{{patientName}} moved from {{fromPriority}} to {{toPriority}} ({{toLabel}}) by {{shiftedBy}}. Reason: {{reasoning}}",
			Channel:  ChannelPager,
			Priority: "high",
		},
		{
			ID:       jobs.JobCriticalVitals,
			Subject:  "CRITICAL vitals: {{patientName}}",
			Body:     "{{patientName}} has critical vitals: {{findings}}. Recorded by {{recordedBy}}. Current priority {{priority}}.",
			Channel:  ChannelPager,
			Priority: "critical",
		},
		{
			ID:       jobs.JobAlertRaised,
			Subject:  "{{title}}",
			Body:     "{{message}}",
			Channel:  ChannelSMS,
			Priority: "medium",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

func (e *TemplateEngine) lookup(id string) (Template, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.templates[id]
	if !ok {
		return Template{}, false
	}
	return *t, true
}

// Render performs {{key}} replacement on the template's subject and body.
// Keys present in the template but absent from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	t, ok := e.lookup(templateID)
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}
	subject, body = t.Subject, t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// Senders
// ---------------------------------------------------------------------------

// LogSender writes notifications to the log. The worker uses it when no
// paging provider is configured.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "notification").Logger()}
}

func (s *LogSender) Send(_ context.Context, n *Notification) error {
	s.logger.Info().
		Str("channel", string(n.Channel)).
		Str("recipient", n.Recipient).
		Str("priority", n.Priority).
		Str("subject", n.Subject).
		Msg(n.Body)
	return nil
}

// MockSender is a test double for Sender.
type MockSender struct {
	mu         sync.Mutex
	calls      []Notification
	ShouldFail bool
	FailError  string
}

// Send records the call and optionally returns an error.
func (m *MockSender) Send(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, *n)
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded sends.
func (m *MockSender) Calls() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, len(m.calls))
	copy(out, m.calls)
	return out
}

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

const recentLimit = 200

// Dispatcher turns consumed jobs into notifications. It keeps the most recent
// notifications in memory for the worker's status output.
type Dispatcher struct {
	sender    Sender
	templates *TemplateEngine
	logger    zerolog.Logger

	mu     sync.Mutex
	recent []*Notification
}

func NewDispatcher(sender Sender, tpl *TemplateEngine, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sender:    sender,
		templates: tpl,
		logger:    logger.With().Str("component", "notification").Logger(),
	}
}

// Handle is a jobs.Handler. Jobs without a template return jobs.ErrUnknownJob.
func (d *Dispatcher) Handle(ctx context.Context, job jobs.Job) error {
	tpl, ok := d.templates.lookup(job.Name)
	if !ok {
		return fmt.Errorf("%w: %s", jobs.ErrUnknownJob, job.Name)
	}

	data, err := decodePayload(job.Payload)
	if err != nil {
		return fmt.Errorf("%w: %s payload: %v", jobs.ErrUnknownJob, job.Name, err)
	}

	subject, body, err := d.templates.Render(tpl.ID, data)
	if err != nil {
		return err
	}

	n := &Notification{
		ID:        uuid.NewString(),
		Job:       job.Name,
		JobID:     job.ID,
		Channel:   tpl.Channel,
		Recipient: recipientFor(data),
		Subject:   subject,
		Body:      body,
		Priority:  tpl.Priority,
		Status:    "pending",
		CreatedAt: time.Now().UTC(),
	}
	if p := data["priority"]; job.Name == jobs.JobAlertRaised && p != "" {
		n.Priority = p
	}

	sendErr := d.sender.Send(ctx, n)
	if sendErr != nil {
		n.Status = "failed"
		n.Error = sendErr.Error()
	} else {
		n.Status = "sent"
		sentAt := time.Now().UTC()
		n.SentAt = &sentAt
	}
	d.record(n)

	if sendErr != nil {
		return fmt.Errorf("send %s notification: %w", job.Name, sendErr)
	}
	d.logger.Debug().Str("job", job.Name).Str("notification_id", n.ID).Msg("notification sent")
	return nil
}

func (d *Dispatcher) record(n *Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recent = append(d.recent, n)
	if len(d.recent) > recentLimit {
		d.recent = d.recent[len(d.recent)-recentLimit:]
	}
}

// Recent returns up to limit notifications, newest first.
func (d *Dispatcher) Recent(limit int) []*Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Notification, 0, len(d.recent))
	for i := len(d.recent) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, d.recent[i])
	}
	return out
}

// Stats returns counts of recent notifications grouped by status.
func (d *Dispatcher) Stats() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	stats := make(map[string]int)
	for _, n := range d.recent {
		stats[n.Status]++
	}
	return stats
}

// decodePayload flattens a JSON object into template data. Non-string values
// are rendered with fmt; arrays are joined with ", ".
func decodePayload(raw json.RawMessage) (map[string]string, error) {
	data := map[string]string{}
	if len(raw) == 0 || string(raw) == "null" {
		return data, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := obj[k].(type) {
		case nil:
			data[k] = ""
		case string:
			data[k] = v
		case []any:
			parts := make([]string, len(v))
			for i, p := range v {
				parts[i] = fmt.Sprint(p)
			}
			data[k] = strings.Join(parts, ", ")
		default:
			data[k] = fmt.Sprint(v)
		}
	}
	return data, nil
}

func recipientFor(data map[string]string) string {
	if r := data["recipientRole"]; r != "" {
		return r
	}
	return "er-staff"
}
