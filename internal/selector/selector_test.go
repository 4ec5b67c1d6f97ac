package selector

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/modmail-bridge/internal/domain"
	"github.com/spec-kit/modmail-bridge/internal/repository"
	"github.com/spec-kit/modmail-bridge/internal/transport"
)

// promptMessenger records DMs and exposes guild membership. Unused Messenger
// methods are satisfied by the embedded nil interface and would panic.
type promptMessenger struct {
	transport.Messenger

	mu      sync.Mutex
	guilds  []string
	members map[string]map[string]bool // guild -> user -> present
	dms     []transport.Outbound
}

func newPromptMessenger(guilds ...string) *promptMessenger {
	return &promptMessenger{
		guilds:  guilds,
		members: make(map[string]map[string]bool),
	}
}

func (m *promptMessenger) join(guildID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[guildID] == nil {
		m.members[guildID] = make(map[string]bool)
	}
	m.members[guildID][userID] = true
}

func (m *promptMessenger) GuildIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.guilds...)
}

func (m *promptMessenger) FetchMember(_ context.Context, guildID, userID string) (*transport.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.members[guildID][userID] {
		return nil, errors.New("not a member")
	}
	return &transport.Member{UserID: userID}, nil
}

func (m *promptMessenger) SendDirect(_ context.Context, _ string, msg transport.Outbound) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dms = append(m.dms, msg)
	return "dm-1", nil
}

func (m *promptMessenger) sentDMs() []transport.Outbound {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transport.Outbound{}, m.dms...)
}

// waitPrompt polls until a DM carrying choice buttons shows up.
func (m *promptMessenger) waitPrompt(t *testing.T) transport.Outbound {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		for _, dm := range m.sentDMs() {
			if len(dm.Buttons) > 0 {
				return dm
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("no selection prompt was sent")
	return transport.Outbound{}
}

type settingsStub struct {
	repository.GuildSettingRepository
	byGuild map[string]*domain.GuildSetting
}

func (s *settingsStub) GetByGuild(_ context.Context, guildID string) (*domain.GuildSetting, error) {
	setting, ok := s.byGuild[guildID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return setting, nil
}

type ticketsStub struct {
	repository.TicketRepository
	open []domain.Ticket
}

func (s *ticketsStub) ListOpenByUser(_ context.Context, userID string) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for _, ticket := range s.open {
		if ticket.UserID == userID {
			result = append(result, ticket)
		}
	}
	return result, nil
}

func promptID(t *testing.T, prompt transport.Outbound) string {
	t.Helper()
	id := prompt.Buttons[0].ID
	idx := strings.LastIndex(id, ":")
	if idx < 0 {
		t.Fatalf("button id %q has no prompt prefix", id)
	}
	return id[:idx]
}

func newSelector(messenger *promptMessenger, settings *settingsStub, tickets *ticketsStub, window time.Duration) *Selector {
	return New(messenger, settings, tickets, window, 5, zap.NewNop())
}

func configured(guilds ...string) *settingsStub {
	stub := &settingsStub{byGuild: make(map[string]*domain.GuildSetting)}
	for _, guildID := range guilds {
		stub.byGuild[guildID] = &domain.GuildSetting{GuildID: guildID, Name: "team-" + guildID}
	}
	return stub
}

func TestSelectDeniedWithoutCandidates(t *testing.T) {
	messenger := newPromptMessenger("g1", "g2")
	// g1 configured but user not a member; g2 has the user but no setting.
	settings := configured("g1")
	messenger.join("g2", "u1")

	s := newSelector(messenger, settings, &ticketsStub{}, time.Second)
	result := s.Select(context.Background(), transport.User{ID: "u1"})
	if result.Outcome != OutcomeDenied {
		t.Fatalf("outcome = %v, want denied", result.Outcome)
	}
	if len(messenger.sentDMs()) != 0 {
		t.Fatal("no prompt should be sent when there is nothing to choose")
	}
}

func TestSelectSingleCandidateIsImmediate(t *testing.T) {
	messenger := newPromptMessenger("g1", "g2")
	settings := configured("g1", "g2")
	messenger.join("g1", "u1")

	s := newSelector(messenger, settings, &ticketsStub{}, time.Second)
	result := s.Select(context.Background(), transport.User{ID: "u1"})
	if result.Outcome != OutcomeChosen || result.GuildID != "g1" {
		t.Fatalf("result = %+v, want g1 chosen", result)
	}
	if len(messenger.sentDMs()) != 0 {
		t.Fatal("single-candidate resolution must not prompt")
	}
}

func TestSelectStickyRoutingBeatsPrompt(t *testing.T) {
	messenger := newPromptMessenger("g1", "g2")
	settings := configured("g1", "g2")
	messenger.join("g1", "u1")
	messenger.join("g2", "u1")
	tickets := &ticketsStub{open: []domain.Ticket{{ID: "t1", UserID: "u1", GuildID: "g2", Status: domain.TicketStatusOpen}}}

	s := newSelector(messenger, settings, tickets, time.Second)
	result := s.Select(context.Background(), transport.User{ID: "u1"})
	if result.Outcome != OutcomeChosen || result.GuildID != "g2" {
		t.Fatalf("result = %+v, want sticky g2", result)
	}
	if len(messenger.sentDMs()) != 0 {
		t.Fatal("sticky routing must not prompt")
	}
}

func TestSelectTimesOut(t *testing.T) {
	messenger := newPromptMessenger("g1", "g2")
	settings := configured("g1", "g2")
	messenger.join("g1", "u1")
	messenger.join("g2", "u1")

	s := newSelector(messenger, settings, &ticketsStub{}, 30*time.Millisecond)
	result := s.Select(context.Background(), transport.User{ID: "u1"})
	if result.Outcome != OutcomeTimeout {
		t.Fatalf("outcome = %v, want timeout", result.Outcome)
	}

	// The timeout notice is delivered from the timer goroutine.
	deadline := time.Now().Add(time.Second)
	for {
		found := false
		for _, dm := range messenger.sentDMs() {
			if strings.Contains(dm.Content, "timed out") {
				found = true
			}
		}
		if found {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timeout notice never arrived")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestSelectFirstValidSelectionWins(t *testing.T) {
	messenger := newPromptMessenger("g1", "g2")
	settings := configured("g1", "g2")
	messenger.join("g1", "u1")
	messenger.join("g2", "u1")

	s := newSelector(messenger, settings, &ticketsStub{}, time.Second)

	resultCh := make(chan Result, 1)
	go func() {
		resultCh <- s.Select(context.Background(), transport.User{ID: "u1"})
	}()

	prompt := messenger.waitPrompt(t)
	if len(prompt.Buttons) != 2 {
		t.Fatalf("prompt buttons = %d, want one per candidate", len(prompt.Buttons))
	}
	pid := promptID(t, prompt)

	// A foreign actor and an unknown choice id must both leave the window open.
	s.HandleSelection(context.Background(), transport.Selection{PromptID: pid, ActorID: "intruder", ChoiceID: prompt.Buttons[0].ID})
	s.HandleSelection(context.Background(), transport.Selection{PromptID: pid, ActorID: "u1", ChoiceID: "bogus"})
	select {
	case result := <-resultCh:
		t.Fatalf("window settled early: %+v", result)
	case <-time.After(20 * time.Millisecond):
	}

	s.HandleSelection(context.Background(), transport.Selection{PromptID: pid, ActorID: "u1", ChoiceID: prompt.Buttons[1].ID})
	result := <-resultCh
	if result.Outcome != OutcomeChosen || result.GuildID != "g2" {
		t.Fatalf("result = %+v, want g2 from button 2", result)
	}

	// A second press after resolution is a no-op.
	s.HandleSelection(context.Background(), transport.Selection{PromptID: pid, ActorID: "u1", ChoiceID: prompt.Buttons[0].ID})
}

func TestSelectJoinsExistingWindow(t *testing.T) {
	messenger := newPromptMessenger("g1", "g2")
	settings := configured("g1", "g2")
	messenger.join("g1", "u1")
	messenger.join("g2", "u1")

	s := newSelector(messenger, settings, &ticketsStub{}, time.Second)

	results := make(chan Result, 2)
	for i := 0; i < 2; i++ {
		go func() {
			results <- s.Select(context.Background(), transport.User{ID: "u1"})
		}()
	}

	prompt := messenger.waitPrompt(t)

	// Give the second Select a moment to attach to the pending window, then
	// confirm only one prompt went out.
	time.Sleep(20 * time.Millisecond)
	prompts := 0
	for _, dm := range messenger.sentDMs() {
		if len(dm.Buttons) > 0 {
			prompts++
		}
	}
	if prompts != 1 {
		t.Fatalf("prompts sent = %d, want a single shared window", prompts)
	}

	s.HandleSelection(context.Background(), transport.Selection{
		PromptID: promptID(t, prompt),
		ActorID:  "u1",
		ChoiceID: prompt.Buttons[0].ID,
	})
	for i := 0; i < 2; i++ {
		result := <-results
		if result.Outcome != OutcomeChosen || result.GuildID != "g1" {
			t.Fatalf("waiter %d result = %+v, want shared g1", i, result)
		}
	}
}

func TestSelectFreshWindowAfterResolution(t *testing.T) {
	messenger := newPromptMessenger("g1", "g2")
	settings := configured("g1", "g2")
	messenger.join("g1", "u1")
	messenger.join("g2", "u1")

	s := newSelector(messenger, settings, &ticketsStub{}, 20*time.Millisecond)

	if result := s.Select(context.Background(), transport.User{ID: "u1"}); result.Outcome != OutcomeTimeout {
		t.Fatalf("first window = %+v, want timeout", result)
	}

	// The next message is a brand-new window, not a resumption.
	resultCh := make(chan Result, 1)
	go func() {
		resultCh <- s.Select(context.Background(), transport.User{ID: "u1"})
	}()
	deadline := time.Now().Add(time.Second)
	var second transport.Outbound
	for {
		prompts := make([]transport.Outbound, 0, 2)
		for _, dm := range messenger.sentDMs() {
			if len(dm.Buttons) > 0 {
				prompts = append(prompts, dm)
			}
		}
		if len(prompts) == 2 {
			second = prompts[1]
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("second window never prompted")
		}
		time.Sleep(2 * time.Millisecond)
	}

	s.HandleSelection(context.Background(), transport.Selection{
		PromptID: promptID(t, second),
		ActorID:  "u1",
		ChoiceID: second.Buttons[0].ID,
	})
	if result := <-resultCh; result.Outcome != OutcomeChosen {
		t.Fatalf("second window = %+v, want chosen", result)
	}
}

func TestSelectRespectsMaxChoices(t *testing.T) {
	messenger := newPromptMessenger("g1", "g2", "g3")
	settings := configured("g1", "g2", "g3")
	for _, guildID := range []string{"g1", "g2", "g3"} {
		messenger.join(guildID, "u1")
	}

	s := New(messenger, settings, &ticketsStub{}, time.Second, 2, zap.NewNop())

	go s.Select(context.Background(), transport.User{ID: "u1"})
	prompt := messenger.waitPrompt(t)
	if len(prompt.Buttons) != 2 {
		t.Fatalf("buttons = %d, want capped at 2", len(prompt.Buttons))
	}
	s.HandleSelection(context.Background(), transport.Selection{
		PromptID: promptID(t, prompt),
		ActorID:  "u1",
		ChoiceID: prompt.Buttons[0].ID,
	})
}
