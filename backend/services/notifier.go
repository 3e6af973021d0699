package services

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"coursegate/backend/models"
)

// Task is one outbound notification. Tasks are enqueued after the triggering
// state change has committed; from that point delivery is the worker's
// problem, never the request's.
type Task struct {
	UserID  uint
	Email   string
	Kind    string
	Subject string
	Body    string
	Payload map[string]interface{}
}

// Dispatcher is what the state machines see: fire-and-forget enqueue.
type Dispatcher interface {
	Enqueue(t Task)
}

// Notifier is the in-process outbound queue: a buffered channel drained by a
// single worker that persists each notification and hands it to the mailer.
// A full queue drops the task with a warning instead of blocking a request.
type Notifier struct {
	db     *gorm.DB
	mailer Mailer
	log    *zap.SugaredLogger
	queue  chan Task
	done   chan struct{}
}

func NewNotifier(db *gorm.DB, mailer Mailer, log *zap.SugaredLogger, buffer int) *Notifier {
	if buffer <= 0 {
		buffer = 64
	}
	return &Notifier{
		db:     db,
		mailer: mailer,
		log:    log.With("component", "notifier"),
		queue:  make(chan Task, buffer),
		done:   make(chan struct{}),
	}
}

func (n *Notifier) Enqueue(t Task) {
	select {
	case n.queue <- t:
	default:
		n.log.Warnw("notification queue full, dropping task",
			"kind", t.Kind, "user_id", t.UserID)
	}
}

// Start runs the worker until ctx is cancelled, then drains what is already
// queued and closes Done.
func (n *Notifier) Start(ctx context.Context) {
	go func() {
		defer close(n.done)
		for {
			select {
			case t := <-n.queue:
				n.deliver(t)
			case <-ctx.Done():
				for {
					select {
					case t := <-n.queue:
						n.deliver(t)
					default:
						return
					}
				}
			}
		}
	}()
}

func (n *Notifier) Done() <-chan struct{} {
	return n.done
}

func (n *Notifier) deliver(t Task) {
	record := models.Notification{
		UserID:  t.UserID,
		Kind:    t.Kind,
		Subject: t.Subject,
		Body:    t.Body,
	}
	if t.Payload != nil {
		if raw, err := json.Marshal(t.Payload); err == nil {
			record.Payload = datatypes.JSON(raw)
		}
	}
	if err := n.db.Create(&record).Error; err != nil {
		n.log.Errorw("failed to persist notification",
			"kind", t.Kind, "user_id", t.UserID, "error", err)
		return
	}

	if err := n.mailer.Send(t.Email, t.Subject, t.Body); err != nil {
		// Delivery failure is logged and recorded, never retried inline and
		// never surfaced to the request that queued it.
		n.log.Warnw("notification delivery failed",
			"kind", t.Kind, "user_id", t.UserID, "error", err)
		n.db.Model(&record).Update("error", err.Error())
		return
	}

	now := time.Now()
	n.db.Model(&record).Update("sent_at", now)
}
