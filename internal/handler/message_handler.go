/*
Package handler provides HTTP handler functions for message history, sending,
deletion, read receipts, and reactions.

Writes here are the source of truth: a message or reaction is persisted before
the client announces it on the realtime socket, so a lost socket frame never
loses data.
*/
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ripplechat/internal/app/directory"
	"ripplechat/internal/app/store"
	"ripplechat/internal/pkg/auth/jwt"
	"ripplechat/internal/pkg/errs"
	"ripplechat/internal/pkg/logx"
	"ripplechat/internal/pkg/randx"
	"ripplechat/internal/pkg/req"
	"ripplechat/internal/pkg/resp"
)

const (
	// MaxContentLength is the maximum message length in bytes.
	MaxContentLength = 4096

	// DefaultHistoryLimit applies when the client does not specify one.
	DefaultHistoryLimit = 50

	// MaxHistoryLimit caps a single history page.
	MaxHistoryLimit = 200
)

// resolveIdentity maps the request's auth payload to an internal user record.
func resolveIdentity(r *http.Request, deps *AppDeps) (directory.User, *errs.CustomError) {
	identity := jwt.GetPayloadFromContext(r)
	if identity == nil {
		return directory.User{}, errs.NewError(errs.ErrUnauthorized)
	}

	user, err := deps.Directory.Resolve(r.Context(), identity.ExternalID)
	if errors.Is(err, directory.ErrUnknownIdentity) {
		return directory.User{}, errs.NewError(errs.ErrUnknownIdentity)
	}
	if err != nil {
		logx.Error(err, "Failed to resolve identity", "external_id", identity.ExternalID)
		return directory.User{}, errs.NewError(errs.ErrUnknown)
	}

	return user, nil
}

// HandleListMessages returns the chat's message history visible to the caller,
// oldest first, with reactions and read receipts attached.
func HandleListMessages(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, customErr := resolveIdentity(r, deps)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		chatID := chi.URLParam(r, "chatID")
		if !randx.IsValidID(chatID) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		limit := DefaultHistoryLimit
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			parsed, err := strconv.Atoi(limitStr)
			if err != nil || parsed < 1 {
				resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
				return
			}
			limit = min(parsed, MaxHistoryLimit)
		}

		messages, err := deps.Store.ListMessagesForChat(r.Context(), chatID, user.ID, limit)
		if err != nil {
			logx.Error(err, "Failed to list messages", "chat_id", chatID)
			resp.RespondError(w, r, errs.NewError(errs.ErrStoreFailed))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"messages": messages,
		})
	}
}

type SendMessageInput struct {
	// RecipientID is the internal user id of the other chat participant.
	RecipientID string `json:"recipientId" validate:"required,uuid4"`
	// Content is the message text.
	Content string `json:"content" validate:"required"`
}

// HandleSendMessage persists a new message and bumps the recipient's unread
// counter. The client emits the realtime new_message event after this returns,
// so the broadcast only ever announces committed state.
func HandleSendMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, customErr := resolveIdentity(r, deps)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		chatID := chi.URLParam(r, "chatID")
		if !randx.IsValidID(chatID) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		var input SendMessageInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if len(input.Content) > MaxContentLength {
			resp.RespondError(w, r, errs.NewError(errs.ErrMessageContentTooLong))
			return
		}

		msg := store.Message{
			ID:          randx.MessageID(),
			ChatID:      chatID,
			SenderID:    user.ID,
			RecipientID: input.RecipientID,
			Content:     input.Content,
			CreatedAt:   time.Now().UTC(),
		}

		if err := deps.Store.CreateMessage(r.Context(), &msg); err != nil {
			logx.Error(err, "Failed to persist message", "chat_id", chatID)
			resp.RespondError(w, r, errs.NewError(errs.ErrStoreFailed))
			return
		}

		if err := deps.Store.IncrementUnread(r.Context(), chatID, input.RecipientID); err != nil {
			// The message is committed; a stale badge corrects itself on the
			// recipient's next read.
			logx.Error(err, "Failed to bump unread counter", "chat_id", chatID, "recipient_id", input.RecipientID)
		}

		resp.RespondSuccess(w, r, map[string]any{
			"message": msg,
		})
	}
}

// HandleDeleteMessage deletes a message. With forEveryone=true the content is
// cleared for all participants, allowed only to the sender; otherwise the
// message is hidden from the caller alone.
func HandleDeleteMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, customErr := resolveIdentity(r, deps)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		chatID := chi.URLParam(r, "chatID")
		messageID := chi.URLParam(r, "messageID")
		if !randx.IsValidID(chatID) || !randx.IsValidID(messageID) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		forEveryone := r.URL.Query().Get("forEveryone") == "true"

		msg, err := deps.Store.GetMessage(r.Context(), messageID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && msg.ChatID != chatID) {
			resp.RespondError(w, r, errs.NewError(errs.ErrMessageNotFound))
			return
		}
		if err != nil {
			logx.Error(err, "Failed to load message for deletion", "message_id", messageID)
			resp.RespondError(w, r, errs.NewError(errs.ErrStoreFailed))
			return
		}

		if forEveryone {
			if msg.SenderID != user.ID {
				resp.RespondError(w, r, errs.NewError(errs.ErrNotMessageSender))
				return
			}
			err = deps.Store.HardDeleteForEveryone(r.Context(), messageID)
		} else {
			err = deps.Store.SoftDeleteForUser(r.Context(), messageID, user.ID)
		}
		if err != nil {
			logx.Error(err, "Failed to delete message", "message_id", messageID, "for_everyone", forEveryone)
			resp.RespondError(w, r, errs.NewError(errs.ErrStoreFailed))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"messageId":         messageID,
			"deleteForEveryone": forEveryone,
		})
	}
}

type MarkReadInput struct {
	// MessageIDs are the messages the caller has just read.
	MessageIDs []string `json:"messageIds" validate:"required,min=1,dive,uuid4"`
}

// HandleMarkRead records read receipts and zeroes the caller's unread counter
// for the chat.
func HandleMarkRead(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, customErr := resolveIdentity(r, deps)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		chatID := chi.URLParam(r, "chatID")
		if !randx.IsValidID(chatID) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		var input MarkReadInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if err := deps.Store.MarkRead(r.Context(), chatID, user.ID, input.MessageIDs); err != nil {
			logx.Error(err, "Failed to mark messages read", "chat_id", chatID)
			resp.RespondError(w, r, errs.NewError(errs.ErrStoreFailed))
			return
		}

		if err := deps.Store.ResetUnread(r.Context(), chatID, user.ID); err != nil {
			logx.Error(err, "Failed to reset unread counter", "chat_id", chatID)
			resp.RespondError(w, r, errs.NewError(errs.ErrStoreFailed))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"chatId":     chatID,
			"messageIds": input.MessageIDs,
		})
	}
}

// HandleUnreadCount returns the caller's unread counter for the chat.
func HandleUnreadCount(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, customErr := resolveIdentity(r, deps)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		chatID := chi.URLParam(r, "chatID")
		if !randx.IsValidID(chatID) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		count, err := deps.Store.UnreadCount(r.Context(), chatID, user.ID)
		if err != nil {
			logx.Error(err, "Failed to read unread counter", "chat_id", chatID)
			resp.RespondError(w, r, errs.NewError(errs.ErrStoreFailed))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"chatId": chatID,
			"count":  count,
		})
	}
}

type ToggleReactionInput struct {
	// Emoji is the reaction emoji.
	Emoji string `json:"emoji" validate:"required"`
}

// reactionOutcomeNames maps store outcomes to their wire names.
var reactionOutcomeNames = map[store.ReactionOutcome]string{
	store.ReactionAdded:    "added",
	store.ReactionReplaced: "replaced",
	store.ReactionRemoved:  "removed",
}

// HandleToggleReaction applies the reaction toggle/replace rule: a repeat of
// the same emoji removes the caller's reaction, a different emoji replaces it,
// and a first reaction is added.
func HandleToggleReaction(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, customErr := resolveIdentity(r, deps)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		messageID := chi.URLParam(r, "messageID")
		if !randx.IsValidID(messageID) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		var input ToggleReactionInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		reaction, outcome, err := deps.Store.CreateOrUpdateReaction(r.Context(), messageID, user.ID, input.Emoji)
		if errors.Is(err, store.ErrNotFound) {
			resp.RespondError(w, r, errs.NewError(errs.ErrMessageNotFound))
			return
		}
		if err != nil {
			logx.Error(err, "Failed to apply reaction", "message_id", messageID)
			resp.RespondError(w, r, errs.NewError(errs.ErrStoreFailed))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"reaction": reaction,
			"outcome":  reactionOutcomeNames[outcome],
		})
	}
}

// HandleRemoveReaction removes a reaction by id.
func HandleRemoveReaction(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, customErr := resolveIdentity(r, deps)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		messageID := chi.URLParam(r, "messageID")
		reactionID := chi.URLParam(r, "reactionID")
		if !randx.IsValidID(messageID) || !randx.IsValidID(reactionID) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if err := deps.Store.DeleteReaction(r.Context(), reactionID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrReactionNotFound))
				return
			}
			logx.Error(err, "Failed to remove reaction", "reaction_id", reactionID)
			resp.RespondError(w, r, errs.NewError(errs.ErrStoreFailed))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"reactionId": reactionID,
		})
	}
}
