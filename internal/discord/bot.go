// Package discord answers questions asked by mentioning the bot or through
// the /ask slash command.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"cleanse/internal/domain"
)

const (
	// Greeting answers a mention that carries no question.
	Greeting = "Olá! Faça-me uma pergunta sobre League of Legends."
	// Thinking is posted while an answer is computed, then edited in place.
	Thinking = "🧠 Analisando os dados do Reddit..."

	// MaxMessageLength is Discord's limit for a message body.
	MaxMessageLength = 2000

	commandName    = "ask"
	questionOption = "question"
)

// session is the part of *discordgo.Session the handlers use.
type session interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEdit(channelID, messageID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// askCommand is registered on startup.
var askCommand = &discordgo.ApplicationCommand{
	Name:        commandName,
	Description: "Faça uma pergunta sobre League of Legends",
	Options: []*discordgo.ApplicationCommandOption{{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        questionOption,
		Description: "Sua pergunta",
		Required:    true,
	}},
}

// handler turns Discord events into answer jobs. Answers run on their own
// goroutines so the gateway event loop is never blocked.
type handler struct {
	answerer domain.Answerer
	logger   *slog.Logger
	ctx      context.Context

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func newHandler(ctx context.Context, answerer domain.Answerer, logger *slog.Logger) *handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &handler{answerer: answerer, logger: logger, ctx: ctx}
}

// begin registers an answer job. It fails once shutdown has started, so
// no job is added while shutdown waits.
func (h *handler) begin() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.wg.Add(1)
	return true
}

// shutdown refuses new jobs and blocks until every answer in flight has been delivered.
func (h *handler) shutdown() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.wg.Wait()
}

func (h *handler) handleMessage(s session, botID string, m *discordgo.Message) {
	if m.Author == nil || m.Author.ID == botID || m.Author.Bot {
		return
	}
	if !mentions(m, botID) {
		return
	}

	query := StripMention(m.Content, botID)
	if query == "" {
		if _, err := s.ChannelMessageSend(m.ChannelID, Greeting); err != nil {
			h.logger.Error("send greeting", "channel_id", m.ChannelID, "err", err)
		}
		return
	}

	if !h.begin() {
		h.logger.Warn("shutting down, question dropped", "channel_id", m.ChannelID)
		return
	}
	placeholder, err := s.ChannelMessageSend(m.ChannelID, Thinking)
	if err != nil {
		h.wg.Done()
		h.logger.Error("send placeholder", "channel_id", m.ChannelID, "err", err)
		return
	}
	h.logger.Info("question received", "channel_id", m.ChannelID, "author", m.Author.Username)

	go func() {
		defer h.wg.Done()
		answer := Truncate(h.answerer.Answer(h.ctx, m.ChannelID, query))
		if _, err := s.ChannelMessageEdit(m.ChannelID, placeholder.ID, answer); err != nil {
			h.logger.Error("edit placeholder", "channel_id", m.ChannelID, "err", err)
		}
	}()
}

func (h *handler) handleInteraction(s session, i *discordgo.Interaction) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != commandName {
		return
	}

	var query string
	for _, opt := range data.Options {
		if opt.Name == questionOption && opt.Type == discordgo.ApplicationCommandOptionString {
			query = strings.TrimSpace(opt.StringValue())
		}
	}
	if query == "" {
		err := s.InteractionRespond(i, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Content: Greeting},
		})
		if err != nil {
			h.logger.Error("respond greeting", "channel_id", i.ChannelID, "err", err)
		}
		return
	}

	if !h.begin() {
		h.logger.Warn("shutting down, command dropped", "channel_id", i.ChannelID)
		return
	}
	// Discord expects a reply within three seconds; the answer follows as an edit.
	err := s.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		h.wg.Done()
		h.logger.Error("defer interaction", "channel_id", i.ChannelID, "err", err)
		return
	}

	go func() {
		defer h.wg.Done()
		answer := Truncate(h.answerer.Answer(h.ctx, i.ChannelID, query))
		if _, err := s.InteractionResponseEdit(i, &discordgo.WebhookEdit{Content: &answer}); err != nil {
			h.logger.Error("edit interaction", "channel_id", i.ChannelID, "err", err)
		}
	}()
}

func mentions(m *discordgo.Message, botID string) bool {
	for _, u := range m.Mentions {
		if u != nil && u.ID == botID {
			return true
		}
	}
	return false
}

// StripMention removes both mention forms of botID and trims the rest.
func StripMention(content, botID string) string {
	content = strings.ReplaceAll(content, "<@!"+botID+">", "")
	content = strings.ReplaceAll(content, "<@"+botID+">", "")
	return strings.TrimSpace(content)
}

// Truncate shortens text to fit in one Discord message.
func Truncate(text string) string {
	r := []rune(text)
	if len(r) <= MaxMessageLength {
		return text
	}
	return string(r[:MaxMessageLength-3]) + "..."
}

// Bot is a connected Discord client.
type Bot struct {
	session  *discordgo.Session
	guildID  string
	logger   *slog.Logger
	answerer domain.Answerer
}

// New prepares a bot for token. guildID scopes the slash command to one
// server; empty registers it globally.
func New(token, guildID string, answerer domain.Answerer, logger *slog.Logger) (*Bot, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: new session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	return &Bot{session: s, guildID: guildID, logger: logger, answerer: answerer}, nil
}

// Run connects, serves events until ctx ends and waits for pending answers.
func (b *Bot) Run(ctx context.Context) error {
	workCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHandler(workCtx, b.answerer, b.logger)

	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.logger.Info("discord connected", "user", r.User.Username)
	})
	b.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		h.handleMessage(s, s.State.User.ID, m.Message)
	})
	b.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		h.handleInteraction(s, i.Interaction)
	})

	if err := b.session.Open(); err != nil {
		return &domain.TransportError{Op: "discord connect", Err: err}
	}

	cmd, err := b.session.ApplicationCommandCreate(b.session.State.User.ID, b.guildID, askCommand)
	if err != nil {
		b.session.Close()
		return &domain.TransportError{Op: "register command", Err: err}
	}
	b.logger.Info("slash command registered", "name", cmd.Name, "guild_id", b.guildID)

	<-ctx.Done()
	b.logger.Info("discord shutting down")
	// Closing the gateway stops new events; edits in flight go over REST.
	closeErr := b.session.Close()
	h.shutdown()
	if closeErr != nil {
		return &domain.TransportError{Op: "discord close", Err: closeErr}
	}
	return nil
}
