package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	segkafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmedi/medirec/internal/engine/diffver"
	"github.com/openmedi/medirec/internal/infrastructure/monitoring/logging"
	"github.com/openmedi/medirec/pkg/errors"
)

type fakeWriter struct {
	messages []segkafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...segkafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func driftEvent() diffver.DriftEvent {
	return diffver.DriftEvent{
		RunID:      "run-42",
		Added:      3,
		Removed:    1,
		Unchanged:  100,
		ComparedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublishDrift(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, DriftTopic, logging.NewNopLogger())

	require.NoError(t, p.PublishDrift(context.Background(), driftEvent()))
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, DriftTopic, msg.Topic)
	assert.Equal(t, []byte("run-42"), msg.Key, "keyed by run id")

	var decoded diffver.DriftEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, driftEvent(), decoded)
}

func TestPublishDrift_WriteFailure(t *testing.T) {
	w := &fakeWriter{err: errors.New(errors.ErrCodeExternalService, "broker unreachable")}
	p := newProducer(w, DriftTopic, logging.NewNopLogger())

	err := p.PublishDrift(context.Background(), driftEvent())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodePublishFailed))
}

func TestPublishDrift_AfterClose(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, DriftTopic, logging.NewNopLogger())

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
	assert.ErrorIs(t, p.PublishDrift(context.Background(), driftEvent()), ErrProducerClosed)
	assert.NoError(t, p.Close(), "double close is a no-op")
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer(Config{}, logging.NewNopLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
}
