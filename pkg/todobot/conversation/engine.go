package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/harmonyservices/todobot/pkg/todobot/enhance"
	"github.com/harmonyservices/todobot/pkg/todobot/store"
)

// DefaultTrigger is the activation keyword that wakes a fresh session.
const DefaultTrigger = "#todolist"

const menuText = `What would you like to do?

1. 📋 List my tasks
2. ➕ Add a task
3. ✅ Complete a task
4. 🗑️ Delete a task
5. 🚪 Logout

Reply with a number.`

// Engine drives the dialogue. Given an inbound message and the current
// session it computes the next session and at most one reply. Store and
// enhancement calls happen synchronously inside a step; their failures are
// rendered as chat text, never raised to the transport layer.
type Engine struct {
	store    store.Store
	enhancer enhance.Enhancer
	sessions SessionStore
	trigger  string
	logger   *slog.Logger
}

// NewEngine creates a conversation engine. An empty trigger falls back to
// DefaultTrigger.
func NewEngine(st store.Store, enhancer enhance.Enhancer, sessions SessionStore, trigger string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if trigger == "" {
		trigger = DefaultTrigger
	}
	return &Engine{
		store:    st,
		enhancer: enhancer,
		sessions: sessions,
		trigger:  strings.ToLower(trigger),
		logger:   logger.With("component", "conversation"),
	}
}

// Sessions exposes the underlying session store (used by the digest scheduler).
func (e *Engine) Sessions() SessionStore {
	return e.sessions
}

// HandleMessage runs one dialogue turn for the given normalized address.
// It loads (or defaults) the session, steps the state machine, persists the
// result, and returns the reply text. An empty reply means stay silent.
func (e *Engine) HandleMessage(ctx context.Context, address, text string) string {
	sess, ok := e.sessions.Get(address)
	if !ok {
		sess = Session{Address: address, State: StateFresh}
	}
	sess.LastSeenAt = time.Now()

	reply, endSession := e.step(ctx, &sess, strings.TrimSpace(text))

	if endSession {
		e.sessions.Delete(address)
	} else {
		e.sessions.Put(address, sess)
	}
	return reply
}

// step applies one transition. It mutates sess in place and returns the reply
// plus whether the session should be discarded (logout).
func (e *Engine) step(ctx context.Context, sess *Session, input string) (reply string, endSession bool) {
	switch sess.State {
	case StateFresh:
		return e.stepFresh(sess, input), false
	case StateAwaitingIdentity:
		return e.stepAwaitingIdentity(sess, input), false
	case StateMenu:
		return e.stepMenu(ctx, sess, input)
	case StateComposingTitle:
		return e.stepComposingTitle(sess, input), false
	case StateComposingDescription:
		return e.stepComposingDescription(ctx, sess, input), false
	case StateChoosingCompleteTarget:
		return e.stepChoosingTarget(ctx, sess, input, true), false
	case StateChoosingDeleteTarget:
		return e.stepChoosingTarget(ctx, sess, input, false), false
	default:
		// Unknown state can only come from a bug; reset to the menu when the
		// user is identified, otherwise start over.
		e.logger.Warn("session in unknown state, resetting", "address", sess.Address, "state", sess.State)
		if sess.Owner != "" {
			sess.State = StateMenu
			return menuText, false
		}
		sess.State = StateFresh
		return "", false
	}
}

func (e *Engine) stepFresh(sess *Session, input string) string {
	if !strings.Contains(strings.ToLower(input), e.trigger) {
		// Stay silent for unrelated chatter.
		return ""
	}
	sess.State = StateAwaitingIdentity
	return "👋 Welcome to the AI Todo Bot!\n\nBefore we start: what's your email or name? Your tasks will be kept under it."
}

func (e *Engine) stepAwaitingIdentity(sess *Session, input string) string {
	if input == "" {
		return "Please send your email or name so I can find your tasks."
	}
	sess.Owner = input
	sess.State = StateMenu
	return fmt.Sprintf("Nice to meet you, %s! 🎉\n\n%s", sess.Owner, menuText)
}

func (e *Engine) stepMenu(ctx context.Context, sess *Session, input string) (string, bool) {
	switch input {
	case "1":
		return e.listTasks(ctx, sess), false

	case "2":
		sess.State = StateComposingTitle
		return "What's the task? Send me the title.", false

	case "3":
		if len(sess.CachedTasks) == 0 {
			return "You haven't listed any tasks yet. Send *1* first to see your open tasks.", false
		}
		sess.State = StateChoosingCompleteTarget
		return "Which task is done? Reply with its number:\n\n" + renderTaskChoices(sess.CachedTasks), false

	case "4":
		if len(sess.CachedTasks) == 0 {
			return "You haven't listed any tasks yet. Send *1* first to see your open tasks.", false
		}
		sess.State = StateChoosingDeleteTarget
		return "Which task should I delete? Reply with its number:\n\n" + renderTaskChoices(sess.CachedTasks), false

	case "5":
		// The session is removed entirely; the next message starts fresh.
		return "👋 Logged out. Send " + e.trigger + " whenever you need me again.", true

	default:
		return "❌ I didn't get that.\n\n" + menuText, false
	}
}

func (e *Engine) listTasks(ctx context.Context, sess *Session) string {
	tasks, err := e.store.ListIncomplete(ctx, sess.Owner)
	if err != nil {
		e.logger.Error("listing tasks failed", "owner", sess.Owner, "error", err)
		return "⚠️ I couldn't fetch your tasks right now. Please try again in a moment."
	}
	sess.CachedTasks = tasks

	if len(tasks) == 0 {
		return "🎉 You have no open tasks! Send *2* to add one."
	}
	return "📋 Your open tasks:\n\n" + renderTaskChoices(tasks) + "\n\n" + menuText
}

func (e *Engine) stepComposingTitle(sess *Session, input string) string {
	if input == "" {
		return "The title can't be empty. What's the task?"
	}
	sess.PendingTitle = input
	sess.State = StateComposingDescription
	return "Got it. Any details to add? Send a description, or *skip*."
}

func (e *Engine) stepComposingDescription(ctx context.Context, sess *Session, input string) string {
	description := input
	if strings.EqualFold(input, "skip") {
		description = ""
	}

	title := sess.PendingTitle
	sess.PendingTitle = ""
	sess.State = StateMenu

	// Enhancement failures are absorbed: the deterministic fallback keeps
	// task creation working while the upstream service is down.
	enhancement, err := e.enhancer.Enhance(ctx, title, description)
	if err != nil {
		e.logger.Warn("enhancement failed, using fallback", "title", title, "error", err)
		enhancement = enhance.Fallback(title, description)
	}

	task, err := e.store.Create(ctx, store.Task{
		Owner:               sess.Owner,
		Title:               title,
		Description:         description,
		EnhancedDescription: enhancement.Description,
		Steps:               enhancement.Steps,
	})
	if err != nil {
		e.logger.Error("task creation failed", "owner", sess.Owner, "title", title, "error", err)
		return "⚠️ Sorry, I couldn't save that task. Please try again."
	}

	return fmt.Sprintf("✅ *Task created!*\n\n📌 *%s*\n\n%s", task.Title, enhance.Format(enhancement))
}

// stepChoosingTarget handles both the complete and the delete selection.
// An out-of-range or non-numeric reply never touches the store.
func (e *Engine) stepChoosingTarget(ctx context.Context, sess *Session, input string, complete bool) string {
	sess.State = StateMenu

	n, err := strconv.Atoi(input)
	if err != nil || n < 1 || n > len(sess.CachedTasks) {
		return fmt.Sprintf("❌ That's not a valid number (1-%d). Back to the menu.\n\n%s",
			len(sess.CachedTasks), menuText)
	}
	task := sess.CachedTasks[n-1]

	if complete {
		done := true
		if _, err := e.store.Update(ctx, task.ID, store.Update{Completed: &done}); err != nil {
			e.logger.Error("completing task failed", "id", task.ID, "error", err)
			return "⚠️ I couldn't update that task. It may have changed. Send *1* to refresh your list."
		}
		return fmt.Sprintf("✅ Done! *%s* is completed.", task.Title)
	}

	if err := e.store.Delete(ctx, task.ID); err != nil {
		e.logger.Error("deleting task failed", "id", task.ID, "error", err)
		return "⚠️ I couldn't delete that task. It may have changed. Send *1* to refresh your list."
	}
	return fmt.Sprintf("🗑️ Deleted *%s*.", task.Title)
}

// renderTaskChoices formats a task snapshot as a 1-based numbered list.
func renderTaskChoices(tasks []store.Task) string {
	var b strings.Builder
	for i, task := range tasks {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, task.Title)
	}
	return b.String()
}
