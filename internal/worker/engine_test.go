package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/atelier/internal/config"
	"github.com/Additional-Code/atelier/internal/messaging"
)

type idleClient struct{}

func (idleClient) Publish(context.Context, messaging.Envelope) error { return nil }
func (idleClient) Consume(ctx context.Context, _ messaging.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}
func (idleClient) Topic() string { return "atelier.notifications" }

func newEngine(t *testing.T, regs ...HandlerRegistration) *Engine {
	t.Helper()
	e, err := NewEngine(Params{
		Client:        idleClient{},
		Logger:        zap.NewNop(),
		Config:        config.Config{},
		Registrations: regs,
	})
	require.NoError(t, err)
	return e
}

func TestDispatchRoutesByTopic(t *testing.T) {
	var got []string
	e := newEngine(t, HandlerRegistration{
		Topic: "atelier.notifications",
		Handler: func(_ context.Context, msg messaging.Message) error {
			got = append(got, string(msg.Key))
			return nil
		},
	})

	require.NoError(t, e.Dispatch(context.Background(), messaging.Message{Topic: "atelier.notifications", Key: []byte("AT-1")}))
	require.NoError(t, e.Dispatch(context.Background(), messaging.Message{Topic: "other"}))
	assert.Equal(t, []string{"AT-1"}, got)
}

func TestDispatchReportsFailuresAndPanics(t *testing.T) {
	boom := errors.New("smtp down")
	e := newEngine(t,
		HandlerRegistration{Topic: "fails", Handler: func(context.Context, messaging.Message) error { return boom }},
		HandlerRegistration{Topic: "panics", Handler: func(context.Context, messaging.Message) error { panic("nil mailer") }},
	)

	require.ErrorIs(t, e.Dispatch(context.Background(), messaging.Message{Topic: "fails"}), boom)
	err := e.Dispatch(context.Background(), messaging.Message{Topic: "panics"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil mailer")
}

func TestNewEngineRejectsDuplicateTopics(t *testing.T) {
	noop := func(context.Context, messaging.Message) error { return nil }
	_, err := NewEngine(Params{
		Client: idleClient{},
		Logger: zap.NewNop(),
		Registrations: []HandlerRegistration{
			{Topic: "t", Handler: noop},
			{Topic: "t", Handler: noop},
		},
	})
	require.Error(t, err)
}

func TestStartSkipsWhenDisabled(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.start(context.Background()))
	require.NoError(t, e.stop(context.Background()))
}
