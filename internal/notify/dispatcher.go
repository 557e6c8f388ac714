package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/akmatori/incidentd/internal/queue"
)

// Mirror receives a copy of every dispatched notification, for example a
// chat channel. Mirror failures never fail the dispatch.
type Mirror interface {
	Mirror(ctx context.Context, req queue.NotificationRequest) error
}

// ChannelResult is the outcome on one channel
type ChannelResult struct {
	Success bool   `json:"success"`
	Skipped string `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Result collects the per-channel outcomes of a dispatch
type Result struct {
	Channels map[string]ChannelResult `json:"channels"`
}

// Delivered reports whether at least one channel succeeded
func (r Result) Delivered() bool {
	for _, ch := range r.Channels {
		if ch.Success {
			return true
		}
	}
	return false
}

// Dispatcher renders a notification request and hands it to the sender of
// every requested channel
type Dispatcher struct {
	email  Sender
	sms    Sender
	mirror Mirror
	log    *zap.Logger
}

// NewDispatcher creates a dispatcher. mirror may be nil.
func NewDispatcher(email, sms Sender, mirror Mirror, log *zap.Logger) *Dispatcher {
	return &Dispatcher{email: email, sms: sms, mirror: mirror, log: log.Named("dispatcher")}
}

// Dispatch delivers req. A channel is skipped when the engineer has no
// address for it. Dispatch fails only when every attempted channel failed.
func (d *Dispatcher) Dispatch(ctx context.Context, req queue.NotificationRequest) (Result, error) {
	result := Result{Channels: make(map[string]ChannelResult)}
	var errs []error
	attempted := 0

	for _, channel := range req.RequestedChannels() {
		msg, skip, err := d.render(channel, req)
		if err != nil {
			return result, err
		}
		if skip != "" {
			result.Channels[channel] = ChannelResult{Skipped: skip}
			d.log.Warn("Skipping notification channel",
				zap.String("channel", channel),
				zap.String("incident_id", req.Incident.ID),
				zap.String("reason", skip))
			continue
		}

		attempted++
		sender := d.email
		if channel == queue.ChannelSMS {
			sender = d.sms
		}
		if err := sender.Send(ctx, msg); err != nil {
			result.Channels[channel] = ChannelResult{Error: err.Error()}
			errs = append(errs, fmt.Errorf("%s: %w", channel, err))
			d.log.Error("Notification channel failed",
				zap.String("channel", channel),
				zap.String("incident_id", req.Incident.ID),
				zap.Error(err))
			continue
		}
		result.Channels[channel] = ChannelResult{Success: true}
	}

	if d.mirror != nil {
		if err := d.mirror.Mirror(ctx, req); err != nil {
			d.log.Warn("Failed to mirror notification", zap.String("incident_id", req.Incident.ID), zap.Error(err))
		}
	}

	if attempted > 0 && !result.Delivered() {
		return result, fmt.Errorf("all notification channels failed: %w", errors.Join(errs...))
	}
	return result, nil
}

func (d *Dispatcher) render(channel string, req queue.NotificationRequest) (Message, string, error) {
	switch channel {
	case queue.ChannelEmail:
		if req.Engineer.Email == "" {
			return Message{}, "no_email", nil
		}
		body, err := RenderEmail(req)
		if err != nil {
			return Message{}, "", err
		}
		return Message{Channel: channel, To: req.Engineer.Email, Subject: Subject(req), Body: body}, "", nil
	case queue.ChannelSMS:
		if req.Engineer.Phone == "" {
			return Message{}, "no_phone", nil
		}
		body, err := RenderSMS(req)
		if err != nil {
			return Message{}, "", err
		}
		return Message{Channel: channel, To: NormalizePhone(req.Engineer.Phone), Body: body}, "", nil
	default:
		return Message{}, "unsupported_channel", nil
	}
}
