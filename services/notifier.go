package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"seat-reservation/config"
	"seat-reservation/internal/payment"

	pubnub "github.com/pubnub/go/v7"
)

// PaymentNotifier tells the buyer's browser how their payment ended.
type PaymentNotifier interface {
	NotifyPayment(ctx context.Context, orderID string, st payment.Status) error
}

type PubNubNotifier struct {
	pn *pubnub.PubNub
}

func NewPubNub(cfg *config.Config) *pubnub.PubNub {
	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PubNubUserID))
	pnCfg.PublishKey = cfg.PubNubPublishKey
	pnCfg.SubscribeKey = cfg.PubNubSubscribeKey
	pnCfg.SecretKey = cfg.PubNubSecretKey
	return pubnub.NewPubNub(pnCfg)
}

func NewPubNubNotifier(pn *pubnub.PubNub) *PubNubNotifier {
	return &PubNubNotifier{pn: pn}
}

func OrderChannel(orderID string) string {
	return fmt.Sprintf("order-%s", orderID)
}

func (n *PubNubNotifier) NotifyPayment(ctx context.Context, orderID string, st payment.Status) error {
	msgType := "payment_pending"
	switch {
	case st.IsPaid():
		msgType = "payment_success"
	case st.IsTerminalFailure():
		msgType = "payment_failed"
	}

	_, _, err := n.pn.Publish().
		Channel(OrderChannel(orderID)).
		Message(map[string]any{
			"type":     msgType,
			"order_id": orderID,
			"status":   string(st),
		}).
		Execute()
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", msgType, OrderChannel(orderID), err)
	}
	return nil
}

// paymentNotification is what providers push on the notification channel.
type paymentNotification struct {
	ProviderOrderID string `json:"provider_order_id"`
	ID              string `json:"id"`
}

func (n paymentNotification) reference() string {
	if n.ProviderOrderID != "" {
		return n.ProviderOrderID
	}
	return n.ID
}

// PaymentListener subscribes to the provider notification channel and hands
// every referenced payment to the reconciler.
type PaymentListener struct {
	pn       *pubnub.PubNub
	channel  string
	listener *pubnub.Listener
	handle   func(ctx context.Context, providerOrderID string) (payment.Status, error)
}

func NewPaymentListener(pn *pubnub.PubNub, channel string, payments *PaymentService) *PaymentListener {
	return &PaymentListener{
		pn:       pn,
		channel:  channel,
		listener: pubnub.NewListener(),
		handle:   payments.HandleStatusChange,
	}
}

// Run blocks until ctx is done.
func (l *PaymentListener) Run(ctx context.Context) {
	l.pn.AddListener(l.listener)
	l.pn.Subscribe().Channels([]string{l.channel}).Execute()
	defer l.pn.Unsubscribe().Channels([]string{l.channel}).Execute()

	slog.Info("Listening for payment notifications", "channel", l.channel)

	for {
		select {
		case st := <-l.listener.Status:
			switch st.Category {
			case pubnub.PNConnectedCategory, pubnub.PNReconnectedCategory:
				slog.Info("Connected to pubnub", "channel", l.channel)
			case pubnub.PNDisconnectedCategory, pubnub.PNTimeoutCategory, pubnub.PNReconnectionAttemptsExhausted:
				slog.Warn("Pubnub connection problem", "category", st.Category)
			case pubnub.PNAccessDeniedCategory, pubnub.PNBadRequestCategory:
				slog.Error("Pubnub subscription rejected", "category", st.Category)
			}

		case message := <-l.listener.Message:
			ref, err := decodeNotification(message.Message)
			if err != nil {
				slog.Warn("Ignoring payment notification", "error", err)
				continue
			}
			if _, err := l.handle(ctx, ref); err != nil {
				slog.Error("Failed to reconcile payment notification", "error", err, "provider_order_id", ref)
			}

		case <-ctx.Done():
			slog.Info("Payment listener stopping")
			return
		}
	}
}

// decodeNotification accepts the message either as an object or as a JSON string.
func decodeNotification(msg any) (string, error) {
	var data []byte
	switch m := msg.(type) {
	case string:
		data = []byte(m)
	default:
		var err error
		if data, err = json.Marshal(m); err != nil {
			return "", err
		}
	}

	var n paymentNotification
	if err := json.Unmarshal(data, &n); err != nil {
		return "", fmt.Errorf("decode payment notification: %w", err)
	}
	if n.reference() == "" {
		return "", fmt.Errorf("payment notification without id")
	}
	return n.reference(), nil
}
