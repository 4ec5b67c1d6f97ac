package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/modmail-bridge/internal/domain"
	"github.com/spec-kit/modmail-bridge/internal/repository"
	"github.com/spec-kit/modmail-bridge/internal/transport"
)

// fakeTicketRepo is an in-memory TicketRepository that enforces the same
// one-open-ticket-per-pair rule the partial unique index provides.
type fakeTicketRepo struct {
	mu      sync.Mutex
	seq     int
	tickets map[string]*domain.Ticket
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: make(map[string]*domain.Ticket)}
}

func (r *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tickets {
		if existing.UserID == ticket.UserID && existing.GuildID == ticket.GuildID && existing.Status == domain.TicketStatusOpen {
			return repository.ErrOpenTicketExists
		}
	}
	r.seq++
	ticket.ID = fmt.Sprintf("ticket-%d", r.seq)
	ticket.CreatedAt = time.Now()
	copied := *ticket
	r.tickets[ticket.ID] = &copied
	return nil
}

func (r *fakeTicketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	copied := *ticket
	r.tickets[ticket.ID] = &copied
	return nil
}

func (r *fakeTicketRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.tickets, id)
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *ticket
	return &copied, nil
}

func (r *fakeTicketRepo) GetOpenByPair(_ context.Context, userID, guildID string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ticket := range r.tickets {
		if ticket.UserID == userID && ticket.GuildID == guildID && ticket.Status == domain.TicketStatusOpen {
			copied := *ticket
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeTicketRepo) GetOpenByChannel(_ context.Context, channelID string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ticket := range r.tickets {
		if ticket.ChannelID == channelID && ticket.Status == domain.TicketStatusOpen {
			copied := *ticket
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeTicketRepo) ListOpenByUser(_ context.Context, userID string) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.UserID == userID && ticket.Status == domain.TicketStatusOpen {
			result = append(result, *ticket)
		}
	}
	return result, nil
}

func (r *fakeTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if filter.UserID != nil && ticket.UserID != *filter.UserID {
			continue
		}
		result = append(result, *ticket)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *fakeTicketRepo) Stats(_ context.Context, _ []string) (*repository.TicketStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &repository.TicketStats{}
	for _, ticket := range r.tickets {
		stats.Total++
		if ticket.Status == domain.TicketStatusOpen {
			stats.Open++
		} else {
			stats.Closed++
		}
	}
	return stats, nil
}

func (r *fakeTicketRepo) openCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, ticket := range r.tickets {
		if ticket.Status == domain.TicketStatusOpen {
			count++
		}
	}
	return count
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	seq      int
	messages []domain.Message
}

func (r *fakeMessageRepo) Create(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	msg.ID = fmt.Sprintf("msg-%d", r.seq)
	msg.CreatedAt = time.Now()
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *fakeMessageRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Message
	for _, msg := range r.messages {
		if msg.TicketID == ticketID {
			result = append(result, msg)
		}
	}
	return result, nil
}

func (r *fakeMessageRepo) DeleteByTicket(_ context.Context, ticketID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []domain.Message
	for _, msg := range r.messages {
		if msg.TicketID != ticketID {
			kept = append(kept, msg)
		}
	}
	r.messages = kept
	return nil
}

type fakeBlockedRepo struct {
	mu      sync.Mutex
	blocked map[string]*domain.BlockedUser
}

func newFakeBlockedRepo() *fakeBlockedRepo {
	return &fakeBlockedRepo{blocked: make(map[string]*domain.BlockedUser)}
}

func (r *fakeBlockedRepo) Get(_ context.Context, userID string) (*domain.BlockedUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.blocked[userID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *entry
	return &copied, nil
}

func (r *fakeBlockedRepo) Create(_ context.Context, blocked *domain.BlockedUser) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	blocked.CreatedAt = time.Now()
	copied := *blocked
	r.blocked[blocked.UserID] = &copied
	return nil
}

func (r *fakeBlockedRepo) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.blocked[userID]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.blocked, userID)
	return nil
}

func (r *fakeBlockedRepo) List(_ context.Context) ([]domain.BlockedUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.BlockedUser
	for _, entry := range r.blocked {
		result = append(result, *entry)
	}
	return result, nil
}

func (r *fakeBlockedRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.blocked)), nil
}

type fakeSettingRepo struct {
	mu       sync.Mutex
	settings map[string]*domain.GuildSetting
}

func newFakeSettingRepo() *fakeSettingRepo {
	return &fakeSettingRepo{settings: make(map[string]*domain.GuildSetting)}
}

func (r *fakeSettingRepo) put(setting domain.GuildSetting) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[setting.GuildID] = &setting
}

func (r *fakeSettingRepo) Upsert(_ context.Context, setting *domain.GuildSetting) error {
	r.put(*setting)
	return nil
}

func (r *fakeSettingRepo) GetByGuild(_ context.Context, guildID string) (*domain.GuildSetting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	setting, ok := r.settings[guildID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *setting
	return &copied, nil
}

func (r *fakeSettingRepo) GetDefault(_ context.Context) (*domain.GuildSetting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, setting := range r.settings {
		if setting.IsDefault {
			copied := *setting
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeSettingRepo) List(_ context.Context) ([]domain.GuildSetting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.GuildSetting
	for _, setting := range r.settings {
		result = append(result, *setting)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].GuildID < result[j].GuildID })
	return result, nil
}

func (r *fakeSettingRepo) Delete(_ context.Context, guildID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.settings, guildID)
	return nil
}

func (r *fakeSettingRepo) SetDefault(_ context.Context, guildID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, setting := range r.settings {
		setting.IsDefault = setting.GuildID == guildID
	}
	return nil
}

type sentMessage struct {
	targetID string
	msg      transport.Outbound
}

// fakeMessenger is a thread-safe in-memory Messenger.
type fakeMessenger struct {
	mu       sync.Mutex
	bot      transport.User
	guilds   []string
	users    map[string]transport.User
	members  map[string]map[string]*transport.Member // guild -> user -> member
	channels map[string]*transport.Channel
	chanSeq  int

	dms         []sentMessage
	channelMsgs []sentMessage
	reactions   []string
	deleted     []string

	failDM bool
}

func newFakeMessenger(guilds ...string) *fakeMessenger {
	return &fakeMessenger{
		bot:      transport.User{ID: "bot-1", Username: "bridge", IsBot: true},
		guilds:   guilds,
		users:    make(map[string]transport.User),
		members:  make(map[string]map[string]*transport.Member),
		channels: make(map[string]*transport.Channel),
	}
}

func (m *fakeMessenger) addUser(user transport.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
}

func (m *fakeMessenger) addMember(guildID string, member transport.Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[guildID] == nil {
		m.members[guildID] = make(map[string]*transport.Member)
	}
	copied := member
	m.members[guildID][member.UserID] = &copied
}

func (m *fakeMessenger) removeChannel(channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, channelID)
}

func (m *fakeMessenger) BotUser() transport.User { return m.bot }

func (m *fakeMessenger) GuildIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.guilds...)
}

func (m *fakeMessenger) FetchUser(_ context.Context, userID string) (*transport.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s not found", userID)
	}
	return &user, nil
}

func (m *fakeMessenger) FetchMember(_ context.Context, guildID, userID string) (*transport.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[guildID][userID]
	if !ok {
		return nil, fmt.Errorf("member %s not found in %s", userID, guildID)
	}
	copied := *member
	return &copied, nil
}

func (m *fakeMessenger) SendDirect(_ context.Context, userID string, msg transport.Outbound) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDM {
		return "", fmt.Errorf("dm delivery failed")
	}
	m.dms = append(m.dms, sentMessage{targetID: userID, msg: msg})
	return fmt.Sprintf("dm-%d", len(m.dms)), nil
}

func (m *fakeMessenger) CreateChannel(_ context.Context, guildID string, req transport.ChannelCreate) (*transport.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chanSeq++
	channel := &transport.Channel{
		ID:       fmt.Sprintf("chan-%d", m.chanSeq),
		GuildID:  guildID,
		Name:     req.Name,
		Topic:    req.Topic,
		ParentID: req.ParentID,
	}
	m.channels[channel.ID] = channel
	return channel, nil
}

func (m *fakeMessenger) FetchChannel(_ context.Context, channelID string) (*transport.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	channel, ok := m.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("channel %s not found", channelID)
	}
	copied := *channel
	return &copied, nil
}

func (m *fakeMessenger) DeleteChannel(_ context.Context, channelID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, channelID)
	m.deleted = append(m.deleted, channelID)
	return nil
}

func (m *fakeMessenger) SendChannelMessage(_ context.Context, channelID string, msg transport.Outbound) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channelMsgs = append(m.channelMsgs, sentMessage{targetID: channelID, msg: msg})
	return fmt.Sprintf("cm-%d", len(m.channelMsgs)), nil
}

func (m *fakeMessenger) React(_ context.Context, channelID, messageID, emoji string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reactions = append(m.reactions, channelID+"/"+messageID+"/"+emoji)
	return nil
}

func (m *fakeMessenger) dmsTo(userID string) []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []sentMessage
	for _, dm := range m.dms {
		if dm.targetID == userID {
			result = append(result, dm)
		}
	}
	return result
}

func (m *fakeMessenger) lastDMTo(userID string) (sentMessage, bool) {
	dms := m.dmsTo(userID)
	if len(dms) == 0 {
		return sentMessage{}, false
	}
	return dms[len(dms)-1], true
}

func (m *fakeMessenger) channelMessages(channelID string) []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []sentMessage
	for _, cm := range m.channelMsgs {
		if cm.targetID == channelID {
			result = append(result, cm)
		}
	}
	return result
}

func dmContains(msgs []sentMessage, needle string) bool {
	for _, msg := range msgs {
		if strings.Contains(msg.msg.Content, needle) {
			return true
		}
	}
	return false
}
