package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"next-chatbot-go/internal/model"
	"next-chatbot-go/pkg/mail"
)

func TestMailSendWithoutTokenMakesNoCall(t *testing.T) {
	env := newTestEnv(t, time.Millisecond)
	sender := &fakeSender{needsToken: true}
	svc := NewMailService(env.conversations, env.identities, sender)

	_, err := svc.Send(context.Background(), "c1", "x@y.com", "S", "B")
	assert.ErrorIs(t, err, ErrAccessTokenMissing)
	assert.Equal(t, "Access Token Missing! Please login again.", err.Error())
	assert.Empty(t, sender.sent)
}

func TestMailSendEmptyRecipient(t *testing.T) {
	env := newTestEnv(t, time.Millisecond)
	sender := &fakeSender{}
	svc := NewMailService(env.conversations, env.identities, sender)

	_, err := svc.Send(context.Background(), "c1", "  ", "S", "B")
	assert.ErrorIs(t, err, ErrEmptyRecipient)
	assert.Empty(t, sender.sent)
}

func TestMailSendSuccessAppendsOutcome(t *testing.T) {
	env := newTestEnv(t, time.Millisecond)
	ctx := context.Background()
	require.NoError(t, env.identities.SaveAccessToken(ctx, "c1", "gmail-tok"))
	sender := &fakeSender{needsToken: true}
	svc := NewMailService(env.conversations, env.identities, sender)

	res, err := svc.Send(ctx, "c1", " x@y.com ", "Hello", "Body")
	require.NoError(t, err)
	assert.Equal(t, &MailResult{Sent: true, Message: MailSentMessage}, res)
	assert.Equal(t, []mail.Message{{To: "x@y.com", Subject: "Hello", Body: "Body"}}, sender.sent)
	assert.Equal(t, []string{"gmail-tok"}, sender.tokens)

	conv, err := env.conversations.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []model.ChatMessage{model.BotMessage(MailSentMessage)}, conv.Transcript.Messages())
}

func TestMailSendProviderFailureIsRecorded(t *testing.T) {
	env := newTestEnv(t, time.Millisecond)
	ctx := context.Background()
	sender := &fakeSender{err: errors.New("401")}
	svc := NewMailService(env.conversations, env.identities, sender)

	res, err := svc.Send(ctx, "c1", "x@y.com", "S", "B")
	require.NoError(t, err)
	assert.False(t, res.Sent)

	conv, _ := env.conversations.Get(ctx, "c1")
	assert.Equal(t, []model.ChatMessage{model.BotMessage(MailFailedMessage)}, conv.Transcript.Messages())
}

func TestMailSendFinishesRevealFirst(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()
	conv, err := env.conversations.Get(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, conv.Transcript.Append(ctx, model.BotMessage(DefaultProcessingText)))
	conv.Revealer.Start("Subject: Hi\n\nBody")

	svc := NewMailService(env.conversations, env.identities, &fakeSender{})
	_, err = svc.Send(ctx, "c1", "x@y.com", "Hi", "Body")
	require.NoError(t, err)

	assert.Equal(t, []model.ChatMessage{
		model.BotMessage("Subject: Hi\n\nBody"),
		model.BotMessage(MailSentMessage),
	}, conv.Transcript.Messages())
}
