package notify

import (
	"context"
	"log"
	"time"

	"github.com/dungla2011/monitor-2025-sub000/internal/alertmanager"
	"github.com/dungla2011/monitor-2025-sub000/internal/config"
	"github.com/dungla2011/monitor-2025-sub000/internal/model"
	"github.com/dungla2011/monitor-2025-sub000/internal/policy"
)

// AlertConfigSource looks up the alert_config string for a given monitor
// item and channel (§4.7 "get_alert_config_for_item").
type AlertConfigSource interface {
	GetAlertConfigForItem(ctx context.Context, itemID int64, channel string) (*model.AlertConfig, error)
}

// Dispatcher runs the shared gate->throttle->counter->send skeleton
// (§4.5 points 1-6) across all four channel transports.
type Dispatcher struct {
	manager    *alertmanager.Manager
	policy     *policy.Policy
	configs    AlertConfigSource
	transports map[string]Transport
	throttle   config.ThrottleConfig
	webhookCfg config.WebhookConfig
	curve      alertmanager.Curve
	adminDomain string
}

// New creates a Dispatcher wired to the given transports (keyed by
// Transport.Channel()).
func New(
	manager *alertmanager.Manager,
	pol *policy.Policy,
	configs AlertConfigSource,
	transports []Transport,
	throttle config.ThrottleConfig,
	webhookCfg config.WebhookConfig,
	adminDomain string,
) *Dispatcher {
	byChannel := make(map[string]Transport, len(transports))
	for _, t := range transports {
		byChannel[t.Channel()] = t
	}
	return &Dispatcher{
		manager:    manager,
		policy:     pol,
		configs:    configs,
		transports: byChannel,
		throttle:   throttle,
		webhookCfg: webhookCfg,
		adminDomain: adminDomain,
		curve: alertmanager.Curve{
			ConsecutiveErrorThreshold: throttle.ConsecutiveErrorThreshold,
			ExtendedIntervalMinutes:   throttle.ExtendedAlertIntervalMinutes,
		},
	}
}

func (d *Dispatcher) throttleSecondsFor(channel string) int {
	switch channel {
	case alertmanager.ChannelChat:
		return d.throttle.TelegramThrottleSeconds
	case alertmanager.ChannelWebhook:
		return d.throttle.WebhookThrottleSeconds
	case alertmanager.ChannelPush:
		return d.throttle.FirebaseThrottleSeconds
	case alertmanager.ChannelEmail:
		return d.throttle.EmailThrottleSeconds
	default:
		return 30
	}
}

// gateBypassesPolicy reports whether recoveries on this channel send
// unconditionally on transition, bypassing the User Policy window gate
// (SPEC_FULL §4.5 Open Question 2: chat and push do, webhook and email
// remain gated).
func gateBypassesPolicy(channel string) bool {
	return channel == alertmanager.ChannelChat || channel == alertmanager.ChannelPush
}

// DispatchError runs the full skeleton for an error transition on item,
// across every channel currently linked to it.
func (d *Dispatcher) DispatchError(ctx context.Context, item *model.MonitorItem, message string) {
	d.manager.IncrementConsecutiveError(item.ID)
	for channel, transport := range d.transports {
		d.sendOne(ctx, item, channel, transport, Event{
			Kind:                 KindError,
			MonitorID:            item.ID,
			MonitorName:          item.Name,
			URL:                  item.URLCheck,
			Message:              message,
			ConsecutiveCount:     d.manager.GetConsecutiveErrorCount(item.ID),
			CheckIntervalSeconds: item.EffectiveIntervalSeconds(),
			AdminDomain:          d.adminDomain,
			Timestamp:            time.Now().UTC(),
		})
	}
}

// DispatchRecovery runs the full skeleton for a failure->success
// transition on item, across every channel that had sent an error for
// the current episode (or unconditionally for chat/push).
func (d *Dispatcher) DispatchRecovery(ctx context.Context, item *model.MonitorItem, responseTimeMs *float64) {
	if prev := d.manager.ResetConsecutiveError(item.ID); prev > 0 {
		log.Printf("notify: item %d recovered after %d consecutive failures", item.ID, prev)
	}
	for channel, transport := range d.transports {
		if channel == alertmanager.ChannelWebhook || channel == alertmanager.ChannelEmail {
			if !d.manager.HasErrorSentSinceError(item.ID, channel) {
				continue
			}
		}
		d.sendOne(ctx, item, channel, transport, Event{
			Kind:                 KindRecovery,
			MonitorID:            item.ID,
			MonitorName:          item.Name,
			URL:                  item.URLCheck,
			Message:              "recovered",
			ResponseTimeMs:       responseTimeMs,
			CheckIntervalSeconds: item.EffectiveIntervalSeconds(),
			AdminDomain:          d.adminDomain,
			Timestamp:            time.Now().UTC(),
		})
	}
}

func (d *Dispatcher) sendOne(ctx context.Context, item *model.MonitorItem, channel string, transport Transport, event Event) {
	if channel == alertmanager.ChannelWebhook && !d.webhookCfg.Enabled {
		log.Printf("notify: item %d channel webhook suppressed: webhook transport globally disabled", item.ID)
		return
	}

	alertConfig, deviceToken, ok := d.resolveAlertConfig(ctx, item, channel)
	if !ok {
		return
	}

	if event.Kind == KindError || !gateBypassesPolicy(channel) {
		allowed, reason, err := d.policy.IsAlertTimeAllowed(ctx, item.UserID, time.Now())
		if err != nil {
			log.Printf("notify: item %d channel %s policy check failed, failing open: %v", item.ID, channel, err)
		} else if !allowed {
			log.Printf("notify: item %d channel %s suppressed by user policy: %s", item.ID, channel, reason)
			return
		}
	}

	throttleSeconds := d.throttleSecondsFor(channel)
	allowRepeat := item.AllowRepeatAlerts()
	emailOverride := channel == alertmanager.ChannelEmail

	if event.Kind == KindError {
		if !d.manager.CanSendAlert(item.ID, channel, throttleSeconds, allowRepeat, emailOverride, d.curve) {
			log.Printf("notify: item %d channel %s throttled", item.ID, channel)
			return
		}
	}

	target := alertConfig
	if channel == alertmanager.ChannelPush {
		target = deviceToken
	}

	if err := transport.Send(ctx, target, event); err != nil {
		log.Printf("notify: item %d channel %s send failed: %v", item.ID, channel, err)
		return
	}

	d.manager.MarkSent(item.ID, channel)
	if event.Kind == KindError {
		d.manager.MarkErrorSentSinceError(item.ID, channel)
	} else {
		// A delivered recovery closes out the episode on this channel:
		// clear sentSinceError so the next failure episode is treated as
		// a fresh first error again (SPEC_FULL §8 scenario S2).
		d.manager.ResetChannelFlags(item.ID, channel)
	}
	log.Printf("notify: item %d channel %s %s delivered", item.ID, channel, event.Kind)
}

// resolveAlertConfig fetches the item's monitor_configs alert_config for
// the channel, except for push, whose target is looked up through User
// Policy's device token instead (the push channel has no
// per-monitor alert_config row; its target is the user's registered
// device, SPEC_FULL §4.5/§9).
func (d *Dispatcher) resolveAlertConfig(ctx context.Context, item *model.MonitorItem, channel string) (alertConfig, deviceToken string, ok bool) {
	if channel == alertmanager.ChannelPush {
		token, err := d.policy.GetPushToken(ctx, item.UserID)
		if err != nil {
			log.Printf("notify: item %d channel push: failed to look up device token: %v", item.ID, err)
			return "", "", false
		}
		if token == nil || *token == "" {
			return "", "", false
		}
		return "", *token, true
	}

	cfg, err := d.configs.GetAlertConfigForItem(ctx, item.ID, channel)
	if err != nil {
		log.Printf("notify: item %d channel %s: failed to look up alert config: %v", item.ID, channel, err)
		return "", "", false
	}
	if cfg == nil {
		return "", "", false
	}
	return cfg.AlertConfig, "", true
}
