package hermes

import (
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// StreamConfigs are the JetStream streams lifecycle events are retained in.
var StreamConfigs = []jetstream.StreamConfig{
	{
		Name:        "CONTAINER_LIFECYCLE",
		Description: "Container lifecycle events: startup, health, shutdown, restart",
		Subjects:    []string{SubjectAllLifecycle},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour, // 7 days
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Discard:     jetstream.DiscardOld,
	},
}
