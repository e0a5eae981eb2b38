package pubsub

import (
	"context"

	"github.com/charmbracelet/log"
)

// NewChangeFeed creates a feed that publishes on topic on behalf of origin.
func NewChangeFeed(client PubSubClient, topic, origin string) *ChangeFeed {
	return &ChangeFeed{client: client, topic: topic, origin: origin}
}

// Origin is the id this instance stamps on its notices.
func (f *ChangeFeed) Origin() string {
	return f.origin
}

// PublishChange announces a committed write to the other instances.
func (f *ChangeFeed) PublishChange(ctx context.Context, collection, id string, version int64) error {
	notice := ChangeNotice{Collection: collection, ID: id, Version: version, Origin: f.origin}
	if err := f.client.SendMessage(ctx, f.topic, notice); err != nil {
		log.Error("Failed to publish record change", "collection", collection, "id", id, "version", version, "error", err)
		return err
	}
	return nil
}

// Decode reads a notice published by any instance. It reports false for
// notices this instance sent itself.
func (f *ChangeFeed) Decode(data []byte) (ChangeNotice, bool, error) {
	var notice ChangeNotice
	if err := f.client.ProcessMessage(data, &notice); err != nil {
		return notice, false, err
	}
	return notice, notice.Origin != f.origin, nil
}
