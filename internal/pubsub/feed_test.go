package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeFeedRoundTrip(t *testing.T) {
	client := NewMock("TEST")
	local := NewChangeFeed(client, "record-changes", "instance-a")
	remote := NewChangeFeed(client, "record-changes", "instance-b")

	require.NoError(t, local.PublishChange(context.Background(), "matches", "m1", 7))

	sent := client.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "record-changes", sent[0].Topic)

	notice, foreign, err := remote.Decode(sent[0].Payload)
	require.NoError(t, err)
	assert.True(t, foreign)
	assert.Equal(t, ChangeNotice{Collection: "matches", ID: "m1", Version: 7, Origin: "instance-a"}, notice)

	_, foreign, err = local.Decode(sent[0].Payload)
	require.NoError(t, err)
	assert.False(t, foreign, "an instance ignores its own notices")
}

func TestChangeFeedPublishError(t *testing.T) {
	client := NewMock("TEST")
	boom := errors.New("unavailable")
	client.SendMessageFunc = func(context.Context, string, any) error { return boom }

	err := NewChangeFeed(client, "record-changes", "a").PublishChange(context.Background(), "series", "s1", 1)
	assert.ErrorIs(t, err, boom)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, _, err := NewChangeFeed(NewMock("TEST"), "t", "a").Decode([]byte{0xc1})
	assert.Error(t, err)
}
