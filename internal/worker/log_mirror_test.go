package worker

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/modmail-bridge/internal/domain"
	"github.com/spec-kit/modmail-bridge/internal/events"
	"github.com/spec-kit/modmail-bridge/internal/repository"
	"github.com/spec-kit/modmail-bridge/internal/transport"
)

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

type channelRecorder struct {
	transport.Messenger
	posts map[string][]string
}

func (m *channelRecorder) SendChannelMessage(_ context.Context, channelID string, msg transport.Outbound) (string, error) {
	if m.posts == nil {
		m.posts = make(map[string][]string)
	}
	m.posts[channelID] = append(m.posts[channelID], msg.Content)
	return "m1", nil
}

func TestLogMirrorPostsLifecycleNotices(t *testing.T) {
	logChannel := "log-chan"
	settings := &settingsStub{byGuild: map[string]*domain.GuildSetting{
		"g1": {GuildID: "g1", LogChannelID: &logChannel},
	}}
	messenger := &channelRecorder{}

	dispatcher := events.NewInMemoryDispatcher()
	NewLogMirror(messenger, settings, zap.NewNop()).Register(dispatcher)

	_ = dispatcher.Publish(context.Background(), events.Event{
		Type: events.EventTicketCreated, TicketID: "t1", GuildID: "g1", ActorID: "u1",
	})
	_ = dispatcher.Publish(context.Background(), events.Event{
		Type: events.EventTicketClosed, TicketID: "t1", GuildID: "g1", ActorID: "staff-1",
	})

	posts := messenger.posts[logChannel]
	if len(posts) != 2 {
		t.Fatalf("log posts = %d, want 2", len(posts))
	}
	if !strings.Contains(posts[0], "opened") || !strings.Contains(posts[1], "closed") {
		t.Fatalf("log posts = %+v", posts)
	}
}

func TestLogMirrorSkipsUnconfiguredGuilds(t *testing.T) {
	messenger := &channelRecorder{}
	dispatcher := events.NewInMemoryDispatcher()
	NewLogMirror(messenger, &settingsStub{byGuild: map[string]*domain.GuildSetting{}}, zap.NewNop()).Register(dispatcher)

	_ = dispatcher.Publish(context.Background(), events.Event{
		Type: events.EventTicketCreated, TicketID: "t1", GuildID: "g-unknown", ActorID: "u1",
	})
	_ = dispatcher.Publish(context.Background(), events.Event{
		Type: events.EventUserBlocked, ActorID: "staff-1",
	})

	if len(messenger.posts) != 0 {
		t.Fatalf("posts = %+v, want none without a log channel", messenger.posts)
	}
}

func TestDescribeBlockedUser(t *testing.T) {
	content := describe(events.Event{
		Type:    events.EventUserBlocked,
		GuildID: "g1",
		ActorID: "staff-1",
		Payload: events.UserBlockedPayload{UserID: "u1", Reason: "spam"},
	})
	if !strings.Contains(content, "u1") || !strings.Contains(content, "spam") {
		t.Fatalf("content = %q", content)
	}
}
