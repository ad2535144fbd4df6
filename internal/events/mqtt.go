// Package events broadcasts committed audit entries over MQTT.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/ledger"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "fleet/ledger"

const qosAtLeastOnce byte = 1

// Publisher is the part of mqtt.Client the broadcaster needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Connect opens an MQTT client that keeps reconnecting in the background.
// On timeout the client is still returned, alongside the error, and keeps
// retrying; messages published meanwhile are buffered by the client.
func Connect(broker, clientID string, timeout time.Duration) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(timeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("MQTT connection lost")
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			log.WithField("broker", broker).Info("MQTT connected")
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return client, fmt.Errorf("mqtt connect to %s: timed out after %s", broker, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", broker, err)
	}
	return client, nil
}

// Broadcaster publishes every audit entry of a committed change set to
// <prefix>/<action>. Publishing happens on its own goroutine so the commit
// hook never waits on the network.
type Broadcaster struct {
	pub            Publisher
	prefix         string
	publishTimeout time.Duration
	logger         log.FieldLogger

	queue chan models.AuditEntry
	done  chan struct{}

	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewBroadcaster creates a broadcaster with room for buffer pending entries.
func NewBroadcaster(pub Publisher, prefix string, buffer int) *Broadcaster {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	if buffer <= 0 {
		buffer = 256
	}
	b := &Broadcaster{
		pub:            pub,
		prefix:         prefix,
		publishTimeout: 5 * time.Second,
		logger:         log.WithField("component", "events"),
		queue:          make(chan models.AuditEntry, buffer),
		done:           make(chan struct{}),
	}
	go b.loop()
	return b
}

// Topic returns the topic an action is published on.
func (b *Broadcaster) Topic(action models.AuditAction) string {
	return b.prefix + "/" + string(action)
}

// Record is a ledger commit hook. Entries that do not fit in the buffer
// are dropped and counted.
func (b *Broadcaster) Record(cs ledger.ChangeSet) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, e := range cs.Audit {
		select {
		case b.queue <- e:
		default:
			b.dropped++
			b.logger.WithFields(log.Fields{"audit_id": e.ID, "action": e.Action}).Warn("Event buffer full, dropping")
		}
	}
}

// Dropped returns how many entries were not queued.
func (b *Broadcaster) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

func (b *Broadcaster) loop() {
	defer close(b.done)
	for e := range b.queue {
		payload, err := json.Marshal(e)
		if err != nil {
			b.logger.WithError(err).Error("Failed to encode audit entry")
			continue
		}
		token := b.pub.Publish(b.Topic(e.Action), qosAtLeastOnce, false, payload)
		if !token.WaitTimeout(b.publishTimeout) {
			b.logger.WithField("audit_id", e.ID).Warn("Publish still pending after timeout")
			continue
		}
		if err := token.Error(); err != nil {
			b.logger.WithFields(log.Fields{"audit_id": e.ID, "error": err}).Error("Publish failed")
		}
	}
}

// Close stops accepting entries and waits until the queued ones are
// published.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()
	<-b.done
}
