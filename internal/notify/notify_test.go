package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dansestudio/internal/common"
)

type fakeTaskClient struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeTaskClient) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{ID: "t-1", Queue: QueueNotifications}, nil
}

type failingMail struct{ calls int }

func (f *failingMail) Send(string, string, string) error {
	f.calls++
	return errors.New("smtp down")
}

func sampleConfirmation() Confirmation {
	return Confirmation{
		OrderID:      "order-1",
		Email:        "kari@example.no",
		CustomerName: "Kari Hansen",
		Amount:       314_500,
		Discount:     25_500,
		RedirectURL:  "https://pay.example/r/1",
		Students: []Student{
			{Name: "Ola Hansen", Courses: []string{"Jazz"}, Package: "1 klasse per uke", Total: 170_000},
			{Name: "Per Hansen", Courses: []string{"Jazz", "Hiphop"}, Package: "1 klasse per uke", Total: 144_500, Discount: 25_500},
		},
		CreatedAt: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestEnqueueConfirmation(t *testing.T) {
	client := &fakeTaskClient{}
	enq := Enqueuer{Client: client, Logger: zerolog.Nop()}

	require.NoError(t, enq.EnqueueConfirmation(context.Background(), sampleConfirmation()))
	require.Len(t, client.tasks, 1)
	require.Equal(t, TypeEnrollmentConfirmation, client.tasks[0].Type())

	decoded, err := decodeConfirmation(client.tasks[0].Payload())
	require.NoError(t, err)
	require.Equal(t, "order-1", decoded.OrderID)
	require.Len(t, decoded.Students, 2)
}

func TestEnqueueConfirmationDuplicateIsNoop(t *testing.T) {
	enq := Enqueuer{Client: &fakeTaskClient{err: asynq.ErrTaskIDConflict}}
	require.NoError(t, enq.EnqueueConfirmation(context.Background(), sampleConfirmation()))

	enq = Enqueuer{Client: &fakeTaskClient{err: errors.New("redis down")}}
	require.Error(t, enq.EnqueueConfirmation(context.Background(), sampleConfirmation()))
}

func TestEnqueueConfirmationRequiresRecipient(t *testing.T) {
	c := sampleConfirmation()
	c.Email = ""
	client := &fakeTaskClient{}
	err := Enqueuer{Client: client}.EnqueueConfirmation(context.Background(), c)
	require.Error(t, err)
	require.Empty(t, client.tasks)
}

func TestRenderConfirmation(t *testing.T) {
	subject, body, err := RenderConfirmation(sampleConfirmation())
	require.NoError(t, err)
	require.Equal(t, "Bekreftelse på påmelding", subject)
	require.Contains(t, body, "Kari Hansen")
	require.Contains(t, body, "order-1")
	require.Contains(t, body, "Jazz, Hiphop")
	require.Contains(t, body, "3 145,00 kr")
	require.Contains(t, body, "https://pay.example/r/1")
}

func TestProcessConfirmationSendsOnce(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	mail := &common.InMemoryEmail{}
	p := &Processor{Mail: mail, Guard: RedisReplayGuard{Client: rdb}, Logger: zerolog.Nop()}
	payload, err := encodeConfirmation(sampleConfirmation())
	require.NoError(t, err)
	task := asynq.NewTask(TypeEnrollmentConfirmation, payload)

	require.NoError(t, p.ProcessConfirmation(context.Background(), task))
	require.NoError(t, p.ProcessConfirmation(context.Background(), task))
	require.Len(t, mail.Sent(), 1)
	require.Equal(t, "kari@example.no", mail.Sent()[0].To)
	require.True(t, mr.Exists("notify:confirmation:order-1"))
}

func TestProcessConfirmationReleasesGuardOnFailure(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	mail := &failingMail{}
	p := &Processor{Mail: mail, Guard: RedisReplayGuard{Client: rdb}, Logger: zerolog.Nop()}
	payload, err := encodeConfirmation(sampleConfirmation())
	require.NoError(t, err)

	err = p.ProcessConfirmation(context.Background(), asynq.NewTask(TypeEnrollmentConfirmation, payload))
	require.Error(t, err)
	require.False(t, errors.Is(err, asynq.SkipRetry))
	require.False(t, mr.Exists("notify:confirmation:order-1"))
}

func TestProcessConfirmationSkipsRetryOnBadPayload(t *testing.T) {
	p := &Processor{Mail: &common.InMemoryEmail{}}
	err := p.ProcessConfirmation(context.Background(), asynq.NewTask(TypeEnrollmentConfirmation, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
