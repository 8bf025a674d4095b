package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	rtsup "ebibot/internal/runtime/supervisor"
	"ebibot/internal/transport"
	logx "ebibot/pkg/logx"
)

type Config struct {
	Token string
	// GuildID scopes slash commands; empty registers them globally.
	GuildID    string
	RatePerSec int
}

// Adapter connects the bot to the Discord gateway and REST API.
type Adapter struct {
	cfg     Config
	log     logx.Logger
	s       *discordgo.Session
	limiter *rate.Limiter

	mu        sync.RWMutex
	commands  map[string]transport.Command
	onMessage []func(ctx context.Context, m transport.Message)
	onReady   []func(ctx context.Context)
	running   bool
	sup       *rtsup.Supervisor
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("discord token is empty")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentGuilds | discordgo.IntentGuildMessages | discordgo.IntentMessageContent

	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	a := &Adapter{
		cfg:      cfg,
		log:      log,
		s:        s,
		limiter:  rate.NewLimiter(rate.Limit(rps), rps),
		commands: map[string]transport.Command{},
	}
	return a, nil
}

// RegisterCommand adds a slash command. Commands are pushed to Discord on
// every ready event.
func (a *Adapter) RegisterCommand(c transport.Command) {
	a.mu.Lock()
	a.commands[c.Name] = c
	a.mu.Unlock()
}

// OnMessage subscribes to message-create events.
func (a *Adapter) OnMessage(fn func(ctx context.Context, m transport.Message)) {
	a.mu.Lock()
	a.onMessage = append(a.onMessage, fn)
	a.mu.Unlock()
}

// OnReady runs fn after each successful gateway (re)connect.
func (a *Adapter) OnReady(fn func(ctx context.Context)) {
	a.mu.Lock()
	a.onReady = append(a.onReady, fn)
	a.mu.Unlock()
}

// Start opens the gateway session. Handlers receive a context that ends
// when ctx ends or Stop is called.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = true
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "discord.adapter"))),
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.mu.Unlock()

	hctx := sup.Context()
	a.s.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		a.safe("ready", func() { a.handleReady(hctx, r) })
	})
	a.s.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		a.safe("message_create", func() { a.handleMessage(hctx, m) })
	})
	a.s.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		a.safe("interaction_create", func() { a.handleInteraction(hctx, i) })
	})

	if err := a.s.Open(); err != nil {
		sup.Cancel()
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
		return fmt.Errorf("open discord session: %w", err)
	}

	sup.Go0("discord.close_on_cancel", func(c context.Context) {
		<-c.Done()
		if err := a.s.Close(); err != nil {
			a.log.Debug("discord session close", logx.Err(err))
		}
	})
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	a.mu.Unlock()
	if !wasRunning || sup == nil {
		return nil
	}
	if err := sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.log.Warn("discord stop", logx.Err(err))
	}
	return nil
}

// safe keeps a panicking handler from killing the process; discordgo runs
// each handler on its own goroutine without recovery.
func (a *Adapter) safe(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("discord handler panicked",
				logx.String("handler", name),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
		}
	}()
	fn()
}

func (a *Adapter) handleReady(ctx context.Context, r *discordgo.Ready) {
	if r.User != nil {
		a.log.Info("logged in", logx.String("user", r.User.Username), logx.String("id", r.User.ID))
	}
	if err := a.syncCommands(); err != nil {
		a.log.Error("slash command sync failed", logx.Err(err))
	}
	a.mu.RLock()
	hooks := append([]func(context.Context){}, a.onReady...)
	a.mu.RUnlock()
	hctx, cancel := context.WithTimeout(ctx, readyHookTimeout)
	defer cancel()
	for _, fn := range hooks {
		fn(hctx)
	}
}

func (a *Adapter) syncCommands() error {
	if a.s.State == nil || a.s.State.User == nil {
		return errors.New("session has no user yet")
	}
	a.mu.RLock()
	defs := make([]*discordgo.ApplicationCommand, 0, len(a.commands))
	for _, c := range a.commands {
		defs = append(defs, toApplicationCommand(c))
	}
	a.mu.RUnlock()

	out, err := a.s.ApplicationCommandBulkOverwrite(a.s.State.User.ID, a.cfg.GuildID, defs)
	if err != nil {
		return err
	}
	a.log.Info("slash commands synced", logx.Int("count", len(out)), logx.String("guild_id", a.cfg.GuildID))
	return nil
}

func (a *Adapter) handleMessage(ctx context.Context, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil {
		return
	}
	msg := fromDiscordMessage(m.Message)
	a.mu.RLock()
	subs := append([]func(context.Context, transport.Message){}, a.onMessage...)
	a.mu.RUnlock()
	for _, fn := range subs {
		fn(ctx, msg)
	}
}

func (a *Adapter) handleInteraction(ctx context.Context, i *discordgo.InteractionCreate) {
	if i == nil || i.Interaction == nil || i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	in, ok := fromInteraction(i.Interaction)
	if !ok {
		return
	}
	a.mu.RLock()
	cmd, found := a.commands[in.Command]
	a.mu.RUnlock()
	if !found || cmd.Handle == nil {
		return
	}

	resp := cmd.Handle(ctx, in)
	if err := a.s.InteractionRespond(i.Interaction, toInteractionResponse(resp), discordgo.WithContext(ctx)); err != nil {
		a.log.Warn("interaction respond failed", logx.String("command", in.Command), logx.Err(err))
	}
}

// Channel looks the id up in the gateway state cache.
func (a *Adapter) Channel(id int64) (transport.Sender, bool) {
	if a.s.State == nil {
		return nil, false
	}
	ch, err := a.s.State.Channel(strconv.FormatInt(id, 10))
	if err != nil || ch == nil {
		return nil, false
	}
	return channelSender{a: a, id: ch.ID}, true
}

// FetchChannel resolves the id over REST.
func (a *Adapter) FetchChannel(ctx context.Context, id int64) (transport.Sender, error) {
	ch, err := a.s.Channel(strconv.FormatInt(id, 10), discordgo.WithContext(ctx))
	if err != nil {
		var rest *discordgo.RESTError
		if errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %d", transport.ErrNoChannel, id)
		}
		return nil, fmt.Errorf("fetch channel %d: %w", id, err)
	}
	return channelSender{a: a, id: ch.ID}, nil
}

type channelSender struct {
	a  *Adapter
	id string
}

func (c channelSender) SendEmbed(ctx context.Context, e transport.Embed) error {
	if err := c.a.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.a.s.ChannelMessageSendEmbed(c.id, toMessageEmbed(e), discordgo.WithContext(ctx))
	return err
}

func (a *Adapter) SendText(ctx context.Context, channelID, text string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := a.s.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	return err
}

func (a *Adapter) Reply(ctx context.Context, m transport.Message, text string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	ref := &discordgo.MessageReference{MessageID: m.ID, ChannelID: m.ChannelID, GuildID: m.GuildID}
	_, err := a.s.ChannelMessageSendReply(m.ChannelID, text, ref, discordgo.WithContext(ctx))
	return err
}

// readyHookTimeout bounds the startup hooks run on each ready event.
const readyHookTimeout = 30 * time.Second

// threadArchiveMinutes is Discord's one-day auto archive.
const threadArchiveMinutes = 1440

func (a *Adapter) StartThread(ctx context.Context, m transport.Message, name string) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", err
	}
	th, err := a.s.MessageThreadStart(m.ChannelID, m.ID, name, threadArchiveMinutes, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return th.ID, nil
}

func (a *Adapter) React(ctx context.Context, m transport.Message, emoji string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	return a.s.MessageReactionAdd(m.ChannelID, m.ID, emoji, discordgo.WithContext(ctx))
}
