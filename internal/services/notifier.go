// Package services – Notifier
//
// This file builds and sends the user-visible notifications of the pipeline:
// plan-ready messages with a deep link back into the bot, and the single
// generic failure message. Failure notification is deduplicated through the
// delivery tracker's first-transition semantics, so repeated failure paths
// for the same request id produce exactly one message.
package services

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"

	"github.com/fitpilot/go-coach-backend/internal/delivery"
	"github.com/fitpilot/go-coach-backend/internal/domain"
	"github.com/fitpilot/go-coach-backend/internal/transport"
)

// Notifier sends user-facing pipeline notifications over the chat transport.
type Notifier struct {
	Chat    transport.Chat
	Tracker *delivery.Tracker

	// BotName builds https://t.me/<BotName>?start=... deep links.
	BotName string
}

// NewNotifier constructs a Notifier.
func NewNotifier(chat transport.Chat, tracker *delivery.Tracker, botName string) *Notifier {
	return &Notifier{Chat: chat, Tracker: tracker, BotName: botName}
}

// ProgramReady notifies the user that a new training program is available.
func (n *Notifier) ProgramReady(ctx context.Context, p *domain.Profile) error {
	t := templatesFor(p.Language)
	return n.Chat.Send(ctx, p.ChatID, t.programReady+"\n"+n.deepLink("program"))
}

// SubscriptionCreated notifies the user that a subscription plan was created.
func (n *Notifier) SubscriptionCreated(ctx context.Context, p *domain.Profile) error {
	t := templatesFor(p.Language)
	return n.Chat.Send(ctx, p.ChatID, t.subscriptionCreated+"\n"+n.deepLink("subscription"))
}

// SubscriptionUpdated notifies the user that a subscription plan was updated.
func (n *Notifier) SubscriptionUpdated(ctx context.Context, p *domain.Profile) error {
	t := templatesFor(p.Language)
	return n.Chat.Send(ctx, p.ChatID, t.subscriptionUpdated+"\n"+n.deepLink("subscription"))
}

// Failure records the terminal failure for requestID and, when this call made
// the first transition into failed, sends the single generic error message.
// A nil profile records the failure without messaging (no chat id known).
// Failure never returns an error: every fault here is logged and absorbed so
// the caller's own error path stays primary.
func (n *Notifier) Failure(ctx context.Context, requestID string, p *domain.Profile, reason string) {
	first, err := n.Tracker.MarkFailed(ctx, requestID, reason)
	if err != nil {
		log.Error().Str("request_id", requestID).Err(err).Msg("mark failed errored")
		return
	}
	if !first {
		log.Debug().Str("request_id", requestID).Msg("failure already notified")
		return
	}
	log.Warn().Str("request_id", requestID).Str("reason", reason).Msg("generation request failed")
	if p == nil {
		return
	}
	t := templatesFor(p.Language)
	if serr := n.Chat.Send(ctx, p.ChatID, t.failure); serr != nil {
		log.Error().Str("request_id", requestID).Err(serr).Msg("failure notification send failed")
	}
}

func (n *Notifier) deepLink(start string) string {
	if n.BotName == "" {
		return ""
	}
	return "https://t.me/" + n.BotName + "?start=" + start
}

// ----------------------------------------------------------------------------
// Localization

type templates struct {
	programReady        string
	subscriptionCreated string
	subscriptionUpdated string
	failure             string
}

var (
	templatesEN = templates{
		programReady:        "Your new training program is ready! Open it here:",
		subscriptionCreated: "Your subscription plan has been created. Open it here:",
		subscriptionUpdated: "Your subscription plan has been updated. Open it here:",
		failure:             "Something went wrong while preparing your plan. Please contact support.",
	}
	templatesRU = templates{
		programReady:        "Ваша новая программа тренировок готова! Открыть:",
		subscriptionCreated: "Ваш план подписки создан. Открыть:",
		subscriptionUpdated: "Ваш план подписки обновлён. Открыть:",
		failure:             "Что-то пошло не так при подготовке плана. Пожалуйста, обратитесь в поддержку.",
	}

	supportedLangs = []language.Tag{language.English, language.Russian}
	langMatcher    = language.NewMatcher(supportedLangs)
)

// templatesFor picks the closest supported template set for a profile
// language tag, defaulting to English for anything unmatched.
func templatesFor(lang string) templates {
	_, idx := language.MatchStrings(langMatcher, lang)
	if idx == 1 {
		return templatesRU
	}
	return templatesEN
}
