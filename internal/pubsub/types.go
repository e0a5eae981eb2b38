package pubsub

import "cloud.google.com/go/pubsub"

type client struct {
	client   *pubsub.Client
	teardown func()
}

// ChangeNotice announces a committed write to a record. Origin identifies the
// instance that made the write so it can ignore its own notices.
type ChangeNotice struct {
	Collection string `msgpack:"collection"`
	ID         string `msgpack:"id"`
	Version    int64  `msgpack:"version"`
	Origin     string `msgpack:"origin"`
}

// ChangeFeed publishes record changes to a topic shared by all instances.
type ChangeFeed struct {
	client PubSubClient
	topic  string
	origin string
}
