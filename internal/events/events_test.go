package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahinestrog/campusbooks/internal/events"
)

func Test_NewRabbit_EmptyURLDisablesEvents(t *testing.T) {
	r, err := events.NewRabbit("", "campusbooks.events")

	require.NoError(t, err)
	assert.Nil(t, r)
	assert.NoError(t, r.Publish(context.Background(), events.BookScanned, map[string]string{"isbn": "9780140328721"}))
	r.Close()
}

func Test_Recorder_KeepsOrderAndFails(t *testing.T) {
	// setup
	var rec events.Recorder
	ctx := context.Background()

	// act
	require.NoError(t, rec.Publish(ctx, events.RequestCreated, map[string]string{"id": "r1"}))
	require.NoError(t, rec.Publish(ctx, events.RequestApproved, map[string]string{"id": "r1"}))
	rec.FailWith(errors.New("broker down"))
	err := rec.Publish(ctx, events.RequestRejected, nil)

	// assert
	assert.Error(t, err)
	assert.Equal(t, []string{events.RequestCreated, events.RequestApproved}, rec.Types())
}

func Test_Envelope_JSONShape(t *testing.T) {
	var rec events.Recorder
	require.NoError(t, rec.Publish(context.Background(), events.BookScanned, map[string]any{"isbn": "9780140328721"}))

	b, err := json.Marshal(rec.Events()[0])
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "book.scanned", got["type"])
	assert.Contains(t, got, "timestamp")
	assert.Equal(t, map[string]any{"isbn": "9780140328721"}, got["payload"])
}
