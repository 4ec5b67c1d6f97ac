// Package selector computes which guild an inbound user may contact and, when
// several qualify, collapses the ambiguity through a time-boxed interactive
// choice delivered over DM.
package selector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/modmail-bridge/internal/repository"
	"github.com/spec-kit/modmail-bridge/internal/transport"
)

// Outcome classifies how a selection resolved.
type Outcome int

const (
	// OutcomeChosen means exactly one destination was determined.
	OutcomeChosen Outcome = iota
	// OutcomeDenied means no configured destination is reachable for the user.
	OutcomeDenied
	// OutcomeTimeout means the interactive window elapsed with no valid choice.
	OutcomeTimeout
)

// Result is the terminal state of one selection.
type Result struct {
	Outcome Outcome
	GuildID string
}

type candidate struct {
	guildID string
	name    string
}

type pendingChoice struct {
	promptID string
	userID   string
	choices  map[string]string // choice id -> guild id
	timer    *time.Timer

	once   sync.Once
	done   chan struct{}
	result Result
}

// Selector drives destination resolution. It holds at most one pending
// interactive window per user; messages arriving while a window is open join
// the existing wait instead of prompting again.
type Selector struct {
	messenger  transport.Messenger
	settings   repository.GuildSettingRepository
	tickets    repository.TicketRepository
	window     time.Duration
	maxChoices int
	logger     *zap.Logger

	mu      sync.Mutex
	pending map[string]*pendingChoice // keyed by user id
}

// New constructs a Selector.
func New(messenger transport.Messenger, settings repository.GuildSettingRepository, tickets repository.TicketRepository, window time.Duration, maxChoices int, logger *zap.Logger) *Selector {
	if window <= 0 {
		window = 60 * time.Second
	}
	if maxChoices <= 0 {
		maxChoices = 5
	}
	return &Selector{
		messenger:  messenger,
		settings:   settings,
		tickets:    tickets,
		window:     window,
		maxChoices: maxChoices,
		logger:     logger,
		pending:    make(map[string]*pendingChoice),
	}
}

// Select resolves the destination for an inbound user. It blocks for at most
// the window duration when an interactive choice is required.
func (s *Selector) Select(ctx context.Context, user transport.User) Result {
	candidates := s.candidatesFor(ctx, user)
	if len(candidates) == 0 {
		return Result{Outcome: OutcomeDenied}
	}
	if len(candidates) == 1 {
		return Result{Outcome: OutcomeChosen, GuildID: candidates[0].guildID}
	}

	// Sticky routing: an existing open conversation is never re-prompted.
	if open, err := s.tickets.ListOpenByUser(ctx, user.ID); err == nil {
		for _, ticket := range open {
			for _, c := range candidates {
				if ticket.GuildID == c.guildID {
					return Result{Outcome: OutcomeChosen, GuildID: c.guildID}
				}
			}
		}
	}

	s.mu.Lock()
	if existing, ok := s.pending[user.ID]; ok {
		s.mu.Unlock()
		return s.wait(ctx, existing)
	}

	p := &pendingChoice{
		promptID: uuid.NewString(),
		userID:   user.ID,
		choices:  make(map[string]string),
		done:     make(chan struct{}),
	}
	s.pending[user.ID] = p
	s.mu.Unlock()

	if len(candidates) > s.maxChoices {
		candidates = candidates[:s.maxChoices]
	}
	buttons := make([]transport.Button, 0, len(candidates))
	for i, c := range candidates {
		choiceID := fmt.Sprintf("%s:%d", p.promptID, i)
		p.choices[choiceID] = c.guildID
		buttons = append(buttons, transport.Button{ID: choiceID, Label: c.name})
	}

	if _, err := s.messenger.SendDirect(ctx, user.ID, transport.Outbound{
		Content: "You can reach several support teams. Pick one to open your ticket with:",
		Buttons: buttons,
	}); err != nil {
		s.logger.Warn("selection prompt delivery failed", zap.String("user_id", user.ID), zap.Error(err))
		s.resolve(p, Result{Outcome: OutcomeDenied})
		return Result{Outcome: OutcomeDenied}
	}

	p.timer = time.AfterFunc(s.window, func() {
		if s.resolve(p, Result{Outcome: OutcomeTimeout}) {
			notice := transport.Outbound{Content: "Selection timed out. Send your message again to restart."}
			if _, err := s.messenger.SendDirect(context.Background(), user.ID, notice); err != nil {
				s.logger.Debug("timeout notice delivery failed", zap.String("user_id", user.ID), zap.Error(err))
			}
		}
	})

	return s.wait(ctx, p)
}

// HandleSelection feeds a component interaction into the matching pending
// window. Selections from anyone but the original requester are rejected
// without altering state; the first valid selection wins, later ones are
// no-ops.
func (s *Selector) HandleSelection(_ context.Context, sel transport.Selection) {
	s.mu.Lock()
	var p *pendingChoice
	for _, cand := range s.pending {
		if cand.promptID == sel.PromptID {
			p = cand
			break
		}
	}
	s.mu.Unlock()
	if p == nil {
		return
	}
	if sel.ActorID != p.userID {
		return
	}
	guildID, ok := p.choices[sel.ChoiceID]
	if !ok {
		return
	}
	s.resolve(p, Result{Outcome: OutcomeChosen, GuildID: guildID})
}

// resolve settles a pending window exactly once and reports whether this call
// was the one that settled it.
func (s *Selector) resolve(p *pendingChoice, result Result) bool {
	won := false
	p.once.Do(func() {
		won = true
		p.result = result
		if p.timer != nil {
			p.timer.Stop()
		}
		s.mu.Lock()
		if s.pending[p.userID] == p {
			delete(s.pending, p.userID)
		}
		s.mu.Unlock()
		close(p.done)
	})
	return won
}

func (s *Selector) wait(ctx context.Context, p *pendingChoice) Result {
	select {
	case <-p.done:
		return p.result
	case <-ctx.Done():
		return Result{Outcome: OutcomeDenied}
	}
}

// candidatesFor returns guilds that are configured, have the bot present, and
// have the user as a member.
func (s *Selector) candidatesFor(ctx context.Context, user transport.User) []candidate {
	var result []candidate
	for _, guildID := range s.messenger.GuildIDs() {
		setting, err := s.settings.GetByGuild(ctx, guildID)
		if err != nil || setting == nil {
			continue
		}
		member, err := s.messenger.FetchMember(ctx, guildID, user.ID)
		if err != nil || member == nil {
			continue
		}
		name := setting.Name
		if name == "" {
			name = guildID
		}
		result = append(result, candidate{guildID: guildID, name: name})
	}
	return result
}
