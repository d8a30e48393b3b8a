package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meridian/pkg/domain"
	"meridian/pkg/logger"
)

func TestProducer_Enqueue(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var job domain.Job
		if err := json.Unmarshal(val, &job); err != nil {
			return err
		}
		if job.SourceID != "malay_mail" {
			return errors.New("unexpected source id " + job.SourceID)
		}
		return nil
	})

	p := NewProducerWithClient(sp, "")
	require.NoError(t, p.Enqueue(context.Background(), domain.Job{SourceID: "malay_mail"}))
	require.NoError(t, p.Close())
}

func TestProducer_EnqueueFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducerWithClient(sp, DefaultTopic)
	err := p.Enqueue(context.Background(), domain.Job{SourceID: "fmt"})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestProducer_RejectsEmptyJob(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	p := NewProducerWithClient(sp, DefaultTopic)

	assert.Error(t, p.Enqueue(context.Background(), domain.Job{SourceID: "  "}))
	require.NoError(t, p.Close())
}

func TestTypedMessageHandler(t *testing.T) {
	var processed []string
	h := &TypedMessageHandler[domain.Job]{
		Validate: func(j *domain.Job) bool { return j.Valid() },
		Process: func(ctx context.Context, j *domain.Job) error {
			if j.SourceID == "broken" {
				return errors.New("boom")
			}
			processed = append(processed, j.SourceID)
			return nil
		},
		AlwaysMark: true,
	}
	ctx := context.Background()

	mark, err := h.HandleMessage(ctx, []byte(`{"sourceId":"the_star"}`))
	assert.NoError(t, err)
	assert.True(t, mark)

	mark, err = h.HandleMessage(ctx, []byte(`not json`))
	assert.Error(t, err)
	assert.True(t, mark, "poison messages are marked when AlwaysMark is set")

	mark, err = h.HandleMessage(ctx, []byte(`{"sourceId":""}`))
	assert.Error(t, err)
	assert.True(t, mark)

	mark, err = h.HandleMessage(ctx, []byte(`{"sourceId":"broken"}`))
	assert.Error(t, err)
	assert.False(t, mark, "processing failures are left for redelivery")

	assert.Equal(t, []string{"the_star"}, processed)
}

type fakeSession struct {
	ctx    context.Context
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32                        { return nil }
func (s *fakeSession) MemberID() string                                  { return "member" }
func (s *fakeSession) GenerationID() int32                               { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)           {}
func (s *fakeSession) Commit()                                           {}
func (s *fakeSession) ResetOffset(string, int32, int64, string)          {}
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) { s.marked = append(s.marked, msg.Offset) }
func (s *fakeSession) Context() context.Context                          { return s.ctx }

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return DefaultTopic }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

type handlerFunc func(ctx context.Context, message []byte) (bool, error)

func (f handlerFunc) HandleMessage(ctx context.Context, message []byte) (bool, error) {
	return f(ctx, message)
}

func TestConsumeClaim_MarksAcceptedMessages(t *testing.T) {
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 3)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 1, Key: []byte("a"), Value: []byte("ok")}
	claim.messages <- &sarama.ConsumerMessage{Offset: 2, Key: []byte("b"), Value: []byte("retry")}
	claim.messages <- &sarama.ConsumerMessage{Offset: 3, Key: []byte("c"), Value: []byte("ok")}
	close(claim.messages)

	h := &groupHandler{
		handler: handlerFunc(func(ctx context.Context, message []byte) (bool, error) {
			if string(message) == "retry" {
				return false, errors.New("transient")
			}
			return true, nil
		}),
		log: logger.NewNop(),
	}
	session := &fakeSession{ctx: context.Background()}

	require.NoError(t, h.ConsumeClaim(session, claim))
	assert.Equal(t, []int64{1, 3}, session.marked)
}

func TestConsumeClaim_StopsOnSessionEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := &groupHandler{handler: handlerFunc(func(context.Context, []byte) (bool, error) { return true, nil }), log: logger.NewNop()}
	session := &fakeSession{ctx: ctx}

	assert.NoError(t, h.ConsumeClaim(session, &fakeClaim{messages: make(chan *sarama.ConsumerMessage)}))
	assert.Empty(t, session.marked)
}
