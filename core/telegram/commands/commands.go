package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command represents a bot command with its handler, description, and metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	AdminOnly   bool
	Hidden      bool
	// PrefixMatch accepts any message starting with the command token,
	// e.g. "/start ref123" still routes to /start.
	PrefixMatch bool
}
