package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"confbot/bot/store"
	tghelpers "confbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// continueSession interprets a free-text message as the continuation of the
// admin's open session. The session is consumed exactly once: valid input
// completes it, invalid input reports the error and still closes it.
func (b *Bot) continueSession(c tele.Context, sess store.Session, text string) error {
	reply, err := b.consumeSession(tghelpers.BuildContext(c), sess, text)
	if err != nil {
		return err
	}
	return tghelpers.SendText(c, reply)
}

// consumeSession runs one continuation input and closes the session. Store
// errors abort before the close so the admin can retry after a transient
// failure.
func (b *Bot) consumeSession(ctx context.Context, sess store.Session, text string) (string, error) {
	reply, err := b.applyContinuation(ctx, sess, strings.TrimSpace(text))
	if err != nil {
		return "", err
	}
	if err := b.store.Sessions.Close(ctx, sess.AdminID); err != nil {
		return "", err
	}
	return reply, nil
}

// applyContinuation executes one continuation input and returns the reply
// text. Store errors abort without consuming the session so the admin can
// retry after a transient failure.
func (b *Bot) applyContinuation(ctx context.Context, sess store.Session, text string) (string, error) {
	switch sess.Action {
	case store.SessionChangeChannel:
		if _, err := b.store.Settings.Update(ctx, store.SettingsPatch{ChannelTarget: &text}); err != nil {
			return "", err
		}
		return fmt.Sprintf("Channel changed to %s", text), nil

	case store.SessionManageAdmins:
		return b.manageAdmins(ctx, text)

	case store.SessionBlacklist:
		return b.manageBlacklist(ctx, text)
	}
	return "Invalid command.", nil
}

func (b *Bot) manageAdmins(ctx context.Context, text string) (string, error) {
	parts := strings.Fields(text)
	if len(parts) == 2 {
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err == nil {
			switch parts[0] {
			case "add":
				return b.addAdmin(ctx, id)
			case "remove":
				return b.removeAdmin(ctx, id)
			}
		}
	}
	return "Invalid command. Use add <id> or remove <id>.", nil
}

func (b *Bot) addAdmin(ctx context.Context, id int64) (string, error) {
	settings, err := b.store.Settings.Get(ctx)
	if err != nil {
		return "", err
	}
	admins := settings.Admins
	if !settings.IsAdmin(id) {
		admins = append(admins, id)
	}
	if _, err := b.store.Settings.Update(ctx, store.SettingsPatch{Admins: &admins}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Added admin %d", id), nil
}

func (b *Bot) removeAdmin(ctx context.Context, id int64) (string, error) {
	settings, err := b.store.Settings.Get(ctx)
	if err != nil {
		return "", err
	}
	admins := make([]int64, 0, len(settings.Admins))
	for _, a := range settings.Admins {
		if a != id {
			admins = append(admins, a)
		}
	}
	if _, err := b.store.Settings.Update(ctx, store.SettingsPatch{Admins: &admins}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Removed admin %d", id), nil
}

func (b *Bot) manageBlacklist(ctx context.Context, text string) (string, error) {
	settings, err := b.store.Settings.Get(ctx)
	if err != nil {
		return "", err
	}

	parts := strings.Fields(text)
	cmd := ""
	if len(parts) > 0 {
		cmd = parts[0]
	}

	switch {
	case cmd == "list":
		return fmt.Sprintf("Blacklisted words: %s", strings.Join(settings.Blacklist, ", ")), nil

	case cmd == "add" && len(parts) == 2:
		word := strings.ToLower(parts[1])
		words := settings.Blacklist
		if !containsWord(words, word) {
			words = append(words, word)
		}
		if _, err := b.store.Settings.Update(ctx, store.SettingsPatch{Blacklist: &words}); err != nil {
			return "", err
		}
		return fmt.Sprintf("Added to blacklist: %s", word), nil

	case cmd == "remove" && len(parts) == 2:
		word := strings.ToLower(parts[1])
		words := make([]string, 0, len(settings.Blacklist))
		for _, w := range settings.Blacklist {
			if w != word {
				words = append(words, w)
			}
		}
		if _, err := b.store.Settings.Update(ctx, store.SettingsPatch{Blacklist: &words}); err != nil {
			return "", err
		}
		return fmt.Sprintf("Removed from blacklist: %s", word), nil
	}
	return "Invalid blacklist command.", nil
}

func containsWord(words []string, word string) bool {
	for _, w := range words {
		if w == word {
			return true
		}
	}
	return false
}
