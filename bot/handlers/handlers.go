// Package handlers binds the Telegram transport to the moderation workflow.
// Every update is classified into exactly one branch: an open admin session
// continuation, a slash command, a callback action, or a new submission.
package handlers

import (
	"time"

	"confbot/bot/moderation"
	"confbot/bot/store"
	coreconfig "confbot/core/config"
	tg "confbot/core/telegram"
	"confbot/core/telegram/commands"
	"confbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

const (
	maxListedConfessions = 50
	listLineTextLimit    = 120
)

// Bot wires stores, the workflow and the transport together.
type Bot struct {
	store  *store.Store
	flow   *moderation.Workflow
	outbox *TeleOutbox
}

// New builds the handler set for the given configuration.
func New(cfg *coreconfig.Config, st *store.Store) *Bot {
	outbox := NewTeleOutbox()
	flow := moderation.New(st, outbox, moderation.Config{
		DefaultChannel:  cfg.Moderation.DefaultChannel,
		FallbackAdminID: cfg.Telegram.FallbackAdminID,
		Cooldown:        time.Duration(cfg.Moderation.CooldownSeconds) * time.Second,
	})
	return &Bot{store: st, flow: flow, outbox: outbox}
}

// Outbox exposes the transport-facing outbox so the runner can bind the bot
// handle once the transport exists.
func (b *Bot) Outbox() *TeleOutbox {
	return b.outbox
}

// RegisterCommands adds the user-facing slash commands.
func (b *Bot) RegisterCommands(reg *tg.Registry) {
	reg.RegisterCommand("/start", commands.Command{
		Handler:     b.handleStart,
		Description: "Greeting and how to confess",
		PrefixMatch: true,
	})
	reg.RegisterCommand("/myconfessions", commands.Command{
		Handler:     b.handleMyConfessions,
		Description: "List your confessions and their status",
	})
	reg.RegisterCommand("/deletedata", commands.Command{
		Handler:     b.handleDeleteData,
		Description: "Delete all your confessions",
	})
	reg.RegisterCommand("/setchannel", commands.Command{
		Handler:     b.handleSetChannel,
		Description: "Set the confession channel",
		AdminOnly:   true,
		Hidden:      true,
		PrefixMatch: true,
	})
}

// Routes returns every endpoint the bot handles. The shared middleware chain
// recovers panics, tags updates with a request id, and counts outbound
// messages for the per-handler summary line.
func (b *Bot) Routes(reg *tg.Registry) []tg.Route {
	reg.SetTextFallback(b.submitText)

	chain := func(h tele.HandlerFunc) tele.HandlerFunc {
		return middleware.RecoverMiddleware(
			middleware.LoggerMiddleware(
				middleware.MessageMetricsMiddleware(h)))
	}

	return []tg.Route{
		{Endpoint: tele.OnText, Handler: chain(b.onText(reg))},
		{Endpoint: tele.OnPhoto, Handler: chain(b.onPhoto)},
		{Endpoint: tele.OnCallback, Handler: chain(b.onCallback)},
	}
}
