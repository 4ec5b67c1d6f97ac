// Package gateway implements the transport.Messenger contract over a
// persistent websocket connection to the chat platform gateway. Outbound
// operations are request/response frames correlated by id; inbound events are
// dispatched to the registered handler, one goroutine per event.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/modmail-bridge/internal/config"
	"github.com/spec-kit/modmail-bridge/internal/transport"
)

const requestTimeout = 15 * time.Second

// Client is a gateway-backed Messenger.
type Client struct {
	cfg     config.GatewayConfig
	logger  *zap.Logger
	handler transport.Handler

	mu       sync.RWMutex
	conn     *websocket.Conn
	bot      transport.User
	guildIDs map[string]struct{}
	pending  map[string]chan frame
}

// New constructs a disconnected client. Call Run to connect and serve events.
func New(cfg config.GatewayConfig, handler transport.Handler, logger *zap.Logger) *Client {
	return &Client{
		cfg:      cfg,
		logger:   logger,
		handler:  handler,
		guildIDs: make(map[string]struct{}),
		pending:  make(map[string]chan frame),
	}
}

// Run connects to the gateway and serves events until ctx is canceled,
// reconnecting with capped exponential backoff on connection loss.
func (c *Client) Run(ctx context.Context) error {
	backoff := time.Second
	maxBackoff := time.Duration(c.cfg.ReconnectMaxSec) * time.Second
	if maxBackoff <= 0 {
		maxBackoff = time.Minute
	}

	for {
		if err := c.connectAndServe(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("gateway connection lost", zap.Error(err), zap.Duration("retry_in", backoff))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *Client) connectAndServe(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutting down")

	if err := wsjson.Write(ctx, conn, frame{Op: opIdentify, Data: mustMarshal(identifyPayload{Token: c.cfg.Token})}); err != nil {
		return fmt.Errorf("identify: %w", err)
	}

	var hello frame
	if err := wsjson.Read(ctx, conn, &hello); err != nil {
		return fmt.Errorf("await ready: %w", err)
	}
	if hello.Op != opReady {
		return fmt.Errorf("unexpected frame before ready: %s", hello.Op)
	}
	var ready readyPayload
	if err := json.Unmarshal(hello.Data, &ready); err != nil {
		return fmt.Errorf("decode ready: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.bot = transport.User{
		ID:        ready.Bot.ID,
		Username:  ready.Bot.Username,
		AvatarURL: ready.Bot.AvatarURL,
		CreatedAt: ready.Bot.CreatedAt,
		IsBot:     true,
	}
	c.guildIDs = make(map[string]struct{}, len(ready.GuildIDs))
	for _, id := range ready.GuildIDs {
		c.guildIDs[id] = struct{}{}
	}
	c.mu.Unlock()

	c.logger.Info("gateway ready",
		zap.String("bot_id", ready.Bot.ID),
		zap.Int("guilds", len(ready.GuildIDs)))

	hbCtx, cancelHB := context.WithCancel(ctx)
	defer cancelHB()
	interval := time.Duration(ready.HeartbeatIntervalS) * time.Second
	if interval <= 0 {
		interval = time.Duration(c.cfg.HeartbeatSeconds) * time.Second
	}
	go c.heartbeat(hbCtx, conn, interval)

	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			c.failPending(err)
			return err
		}
		switch f.Op {
		case opDispatch:
			c.dispatch(ctx, f)
		case opResponse:
			c.settle(f)
		case opHeartbeat:
			// server-initiated ping; echo back
			_ = wsjson.Write(ctx, conn, frame{Op: opHeartbeat, Seq: f.Seq})
		}
	}
}

func (c *Client) heartbeat(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var seq int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			seq++
			if err := wsjson.Write(ctx, conn, frame{Op: opHeartbeat, Seq: seq}); err != nil {
				c.logger.Debug("heartbeat write failed", zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) dispatch(ctx context.Context, f frame) {
	switch f.Type {
	case eventDirectMessage:
		var ev wireMessageEvent
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			c.logger.Warn("bad direct message event", zap.Error(err))
			return
		}
		go c.handler.HandleDirectMessage(ctx, inboundFromWire(ev))
	case eventChannelMessage:
		var ev wireMessageEvent
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			c.logger.Warn("bad channel message event", zap.Error(err))
			return
		}
		go c.handler.HandleChannelMessage(ctx, inboundFromWire(ev))
	case eventComponent:
		var ev wireComponentEvent
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			c.logger.Warn("bad component event", zap.Error(err))
			return
		}
		go c.handler.HandleSelection(ctx, transport.Selection{
			PromptID:  ev.PromptID,
			ActorID:   ev.ActorID,
			ChoiceID:  ev.ChoiceID,
			ChannelID: ev.ChannelID,
			MessageID: ev.MessageID,
		})
	case eventGuildAdd, eventGuildRemove:
		var ev wireGuildEvent
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			return
		}
		c.mu.Lock()
		if f.Type == eventGuildAdd {
			c.guildIDs[ev.GuildID] = struct{}{}
		} else {
			delete(c.guildIDs, ev.GuildID)
		}
		c.mu.Unlock()
	}
}

// call issues one correlated request frame and waits for its response.
func (c *Client) call(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return nil, errors.New("gateway not connected")
	}

	reqID := uuid.NewString()
	ch := make(chan frame, 1)
	c.mu.Lock()
	c.pending[reqID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if err := wsjson.Write(ctx, conn, frame{Op: opRequest, Type: method, ReqID: reqID, Data: mustMarshal(payload)}); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-ch:
		if resp.Error != "" {
			return nil, errors.New(resp.Error)
		}
		return resp.Data, nil
	}
}

func (c *Client) settle(f frame) {
	c.mu.RLock()
	ch, ok := c.pending[f.ReqID]
	c.mu.RUnlock()
	if ok {
		ch <- f
	}
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		ch <- frame{Op: opResponse, ReqID: id, Error: err.Error()}
		delete(c.pending, id)
	}
}

// BotUser implements transport.Messenger.
func (c *Client) BotUser() transport.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bot
}

// GuildIDs implements transport.Messenger.
func (c *Client) GuildIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.guildIDs))
	for id := range c.guildIDs {
		ids = append(ids, id)
	}
	return ids
}

// FetchUser implements transport.Messenger.
func (c *Client) FetchUser(ctx context.Context, userID string) (*transport.User, error) {
	data, err := c.call(ctx, methodFetchUser, fetchByIDRequest{ID: userID})
	if err != nil {
		return nil, err
	}
	var u wireUser
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, err
	}
	user := userFromWire(u)
	return &user, nil
}

// FetchMember implements transport.Messenger.
func (c *Client) FetchMember(ctx context.Context, guildID, userID string) (*transport.Member, error) {
	data, err := c.call(ctx, methodFetchMember, fetchMemberRequest{GuildID: guildID, UserID: userID})
	if err != nil {
		return nil, err
	}
	var m wireMember
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &transport.Member{UserID: m.UserID, RoleIDs: m.RoleIDs, IsAdmin: m.IsAdmin}, nil
}

// SendDirect implements transport.Messenger.
func (c *Client) SendDirect(ctx context.Context, userID string, msg transport.Outbound) (string, error) {
	return c.send(ctx, methodSendDirect, userID, msg)
}

// SendChannelMessage implements transport.Messenger.
func (c *Client) SendChannelMessage(ctx context.Context, channelID string, msg transport.Outbound) (string, error) {
	return c.send(ctx, methodSendChannel, channelID, msg)
}

func (c *Client) send(ctx context.Context, method, targetID string, msg transport.Outbound) (string, error) {
	req := sendRequest{TargetID: targetID, Content: msg.Content, ImageURL: msg.ImageURL}
	for _, field := range msg.Fields {
		req.Fields = append(req.Fields, wireField{Name: field.Name, Value: field.Value})
	}
	for _, button := range msg.Buttons {
		req.Buttons = append(req.Buttons, wireButton{ID: button.ID, Label: button.Label})
	}
	data, err := c.call(ctx, method, req)
	if err != nil {
		return "", err
	}
	var resp sendResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", err
	}
	return resp.MessageID, nil
}

// CreateChannel implements transport.Messenger.
func (c *Client) CreateChannel(ctx context.Context, guildID string, req transport.ChannelCreate) (*transport.Channel, error) {
	data, err := c.call(ctx, methodCreateChannel, createChannelRequest{
		GuildID:     guildID,
		Name:        req.Name,
		Topic:       req.Topic,
		ParentID:    req.ParentID,
		AllowRoles:  req.AllowRoles,
		AllowUsers:  req.AllowUsers,
		DenyDefault: req.DenyDefault,
	})
	if err != nil {
		return nil, err
	}
	var ch wireChannel
	if err := json.Unmarshal(data, &ch); err != nil {
		return nil, err
	}
	channel := channelFromWire(ch)
	return &channel, nil
}

// FetchChannel implements transport.Messenger.
func (c *Client) FetchChannel(ctx context.Context, channelID string) (*transport.Channel, error) {
	data, err := c.call(ctx, methodFetchChannel, fetchByIDRequest{ID: channelID})
	if err != nil {
		return nil, err
	}
	var ch wireChannel
	if err := json.Unmarshal(data, &ch); err != nil {
		return nil, err
	}
	channel := channelFromWire(ch)
	return &channel, nil
}

// DeleteChannel implements transport.Messenger.
func (c *Client) DeleteChannel(ctx context.Context, channelID, reason string) error {
	_, err := c.call(ctx, methodDeleteChannel, deleteChannelRequest{ChannelID: channelID, Reason: reason})
	return err
}

// React implements transport.Messenger.
func (c *Client) React(ctx context.Context, channelID, messageID, emoji string) error {
	_, err := c.call(ctx, methodReact, reactRequest{ChannelID: channelID, MessageID: messageID, Emoji: emoji})
	return err
}

func inboundFromWire(ev wireMessageEvent) transport.InboundMessage {
	return transport.InboundMessage{
		MessageID:   ev.MessageID,
		ChannelID:   ev.ChannelID,
		GuildID:     ev.GuildID,
		Author:      userFromWire(ev.Author),
		Body:        ev.Body,
		Attachments: ev.Attachments,
		Timestamp:   ev.Timestamp,
	}
}

func userFromWire(u wireUser) transport.User {
	return transport.User{
		ID:        u.ID,
		Username:  u.Username,
		AvatarURL: u.AvatarURL,
		CreatedAt: u.CreatedAt,
		IsBot:     u.IsBot,
	}
}

func channelFromWire(ch wireChannel) transport.Channel {
	return transport.Channel{
		ID:       ch.ID,
		GuildID:  ch.GuildID,
		Name:     ch.Name,
		Topic:    ch.Topic,
		ParentID: ch.ParentID,
	}
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
