package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/and161185/ecosbor/internal/model"
	"go.uber.org/zap"
)

// Event describes a committed order transition. Events are published only
// after the transaction commits and are delivered best-effort: the
// notification service owns content and localization.
type Event struct {
	OrderID int64             `json:"order_id"`
	Status  model.OrderStatus `json:"status"`
	Event   string            `json:"event"`
	UserID  int               `json:"user_id,omitempty"`
}

type Notifier struct {
	address string
	logger  *zap.SugaredLogger
	ch      chan Event
}

func NewNotifier(address string, logger *zap.SugaredLogger) *Notifier {
	return &Notifier{
		address: address,
		logger:  logger,
		ch:      make(chan Event, 50),
	}
}

func (n *Notifier) Run(ctx context.Context) {
	if n.address == "" {
		return
	}

	workerCount := 5
	for i := 0; i < workerCount; i++ {
		go n.deliver(ctx)
	}
}

func (n *Notifier) Publish(event Event) {
	if n.address == "" {
		return
	}

	select {
	case n.ch <- event:

	default:
		n.logger.Warnf("notification channel full, dropped event for order %d", event.OrderID)
	}
}

func (n *Notifier) deliver(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-n.ch:
			if err := n.send(ctx, event); err != nil {
				n.logger.Errorf("send notification: %v", err)
			}
		}
	}
}

func (n *Notifier) send(ctx context.Context, event Event) error {
	url := fmt.Sprintf("%s/api/notifications", n.address)

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if retry := resp.Header.Get("Retry-After"); retry != "" {
			if sec, err := strconv.Atoi(retry); err == nil {
				time.Sleep(time.Duration(sec) * time.Second)
			}
		}
		return fmt.Errorf("too many requests")
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	default:
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
}
