package discord

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const botID = "999"

type sent struct {
	channelID, messageID, content string
}

type fakeSession struct {
	mu        sync.Mutex
	sends     []sent
	edits     []sent
	responses []*discordgo.InteractionResponse
	webhook   []string
	sendErr   error
}

func (f *fakeSession) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sends = append(f.sends, sent{channelID: channelID, content: content})
	return &discordgo.Message{ID: "placeholder", ChannelID: channelID, Content: content}, nil
}

func (f *fakeSession) ChannelMessageEdit(channelID, messageID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, sent{channelID: channelID, messageID: messageID, content: content})
	return &discordgo.Message{ID: messageID, ChannelID: channelID, Content: content}, nil
}

func (f *fakeSession) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakeSession) InteractionResponseEdit(_ *discordgo.Interaction, edit *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webhook = append(f.webhook, *edit.Content)
	return &discordgo.Message{}, nil
}

type echoAnswerer struct {
	mu    sync.Mutex
	calls []string
}

func (e *echoAnswerer) Answer(_ context.Context, channelID, query string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, channelID+"|"+query)
	return "resposta: " + query
}

func message(authorID, content string, mentioned ...string) *discordgo.Message {
	m := &discordgo.Message{
		ID:        "m1",
		ChannelID: "chan",
		Content:   content,
		Author:    &discordgo.User{ID: authorID, Username: "player"},
	}
	for _, id := range mentioned {
		m.Mentions = append(m.Mentions, &discordgo.User{ID: id})
	}
	return m
}

func TestMentionIsAnsweredByEditingPlaceholder(t *testing.T) {
	s := &fakeSession{}
	a := &echoAnswerer{}
	h := newHandler(context.Background(), a, nil)

	h.handleMessage(s, botID, message("42", "<@!999> qual a melhor build do Jhin?", botID))
	h.shutdown()

	require.Len(t, s.sends, 1)
	assert.Equal(t, Thinking, s.sends[0].content)
	require.Len(t, s.edits, 1)
	assert.Equal(t, sent{channelID: "chan", messageID: "placeholder", content: "resposta: qual a melhor build do Jhin?"}, s.edits[0])
	assert.Equal(t, []string{"chan|qual a melhor build do Jhin?"}, a.calls)
}

func TestEmptyMentionGetsGreeting(t *testing.T) {
	s := &fakeSession{}
	a := &echoAnswerer{}
	h := newHandler(context.Background(), a, nil)

	h.handleMessage(s, botID, message("42", "  <@999>  ", botID))
	h.shutdown()

	require.Len(t, s.sends, 1)
	assert.Equal(t, Greeting, s.sends[0].content)
	assert.Empty(t, s.edits)
	assert.Empty(t, a.calls)
}

func TestIgnoredMessages(t *testing.T) {
	s := &fakeSession{}
	a := &echoAnswerer{}
	h := newHandler(context.Background(), a, nil)

	h.handleMessage(s, botID, message(botID, "<@999> talking to myself", botID))
	h.handleMessage(s, botID, message("42", "no mention here"))
	h.handleMessage(s, botID, message("42", "<@123> someone else", "123"))
	h.shutdown()

	assert.Empty(t, s.sends)
	assert.Empty(t, a.calls)
}

func TestPlaceholderFailureSkipsAnswer(t *testing.T) {
	s := &fakeSession{sendErr: errors.New("missing access")}
	a := &echoAnswerer{}
	h := newHandler(context.Background(), a, nil)

	h.handleMessage(s, botID, message("42", "<@999> Kayn?", botID))
	h.shutdown()
	assert.Empty(t, a.calls)
}

func askInteraction(question string) *discordgo.Interaction {
	return &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		ChannelID: "chan",
		Data: discordgo.ApplicationCommandInteractionData{
			Name: commandName,
			Options: []*discordgo.ApplicationCommandInteractionDataOption{{
				Name:  questionOption,
				Type:  discordgo.ApplicationCommandOptionString,
				Value: question,
			}},
		},
	}
}

func TestSlashCommandDefersThenEdits(t *testing.T) {
	s := &fakeSession{}
	a := &echoAnswerer{}
	h := newHandler(context.Background(), a, nil)

	h.handleInteraction(s, askInteraction("Smolder scaling?"))
	h.shutdown()

	require.Len(t, s.responses, 1)
	assert.Equal(t, discordgo.InteractionResponseDeferredChannelMessageWithSource, s.responses[0].Type)
	assert.Equal(t, []string{"resposta: Smolder scaling?"}, s.webhook)
	assert.Equal(t, []string{"chan|Smolder scaling?"}, a.calls)
}

func TestSlashCommandWithBlankQuestionGreets(t *testing.T) {
	s := &fakeSession{}
	a := &echoAnswerer{}
	h := newHandler(context.Background(), a, nil)

	h.handleInteraction(s, askInteraction("   "))
	h.shutdown()

	require.Len(t, s.responses, 1)
	assert.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, s.responses[0].Type)
	assert.Equal(t, Greeting, s.responses[0].Data.Content)
	assert.Empty(t, a.calls)
}

func TestStripMention(t *testing.T) {
	assert.Equal(t, "oi", StripMention("<@999> oi", botID))
	assert.Equal(t, "oi", StripMention("<@!999>oi", botID))
	assert.Equal(t, "<@123> oi", StripMention("<@123> oi", botID))
}

func TestTruncate(t *testing.T) {
	short := "curta"
	assert.Equal(t, short, Truncate(short))

	long := strings.Repeat("á", MaxMessageLength+10)
	out := Truncate(long)
	assert.Equal(t, MaxMessageLength, len([]rune(out)))
	assert.True(t, strings.HasSuffix(out, "..."))
}

func TestShutdownWhileMessagesArrive(t *testing.T) {
	for range 200 {
		s := &fakeSession{}
		h := newHandler(context.Background(), &echoAnswerer{}, nil)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 5 {
				h.handleMessage(s, botID, message("42", "<@999> Ambessa?", botID))
			}
		}()
		go func() {
			defer wg.Done()
			h.shutdown()
		}()
		wg.Wait()
		h.shutdown()

		s.mu.Lock()
		assert.Len(t, s.edits, len(s.sends), "every placeholder is answered")
		s.mu.Unlock()
	}
}

func TestNoNewJobsAfterShutdown(t *testing.T) {
	s := &fakeSession{}
	a := &echoAnswerer{}
	h := newHandler(context.Background(), a, nil)
	h.shutdown()

	h.handleMessage(s, botID, message("42", "<@999> Viego?", botID))
	h.handleInteraction(s, askInteraction("Viego?"))

	assert.Empty(t, s.sends)
	assert.Empty(t, s.responses)
	assert.Empty(t, a.calls)
}
