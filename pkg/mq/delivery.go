package mq

import (
	"context"
	"time"

	"github.com/hatn-go/hatn/pkg/dataunit/value"
	"github.com/hatn-go/hatn/pkg/db"
	"github.com/hatn-go/hatn/pkg/logctx"
	"github.com/hatn-go/hatn/pkg/rpc"
)

// DeliveryConfig holds the delivery loop's tunables, named after
// producerclient.h's producer_config HDU unit (dequeue_retry_interval=15,
// publish_ttl=900).
type DeliveryConfig struct {
	BatchSize            int
	DequeueRetryInterval time.Duration
	PublishTTL           time.Duration
}

func DefaultDeliveryConfig() DeliveryConfig {
	return DeliveryConfig{
		BatchSize:            32,
		DequeueRetryInterval: 15 * time.Second,
		PublishTTL:           900 * time.Second,
	}
}

// Deliverer drains one Producer's outbox by sending each pending message to
// a remote service over pkg/rpc, the Go-native rendering of
// producerclient.h's dequeue() (left as an empty stub in the source; this
// loop shape and the retry-on-transient-error rule come from spec.md §4.8's
// Delivery loop paragraph instead).
type Deliverer struct {
	producer *Producer
	client   *rpc.ServiceClient
	method   string
	cfg      DeliveryConfig
	logger   *logctx.Context
	notifier *Notifier

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewDeliverer builds a Deliverer that sends every pending message through
// client by invoking method, passing the message's opaque Content as the
// RPC message body and ObjectType as the message-type name. notifier may be
// nil if the caller has no local subscribers to tell about delivery
// outcomes.
func NewDeliverer(p *Producer, client *rpc.ServiceClient, method string, cfg DeliveryConfig, logger *logctx.Context, notifier *Notifier) *Deliverer {
	return &Deliverer{producer: p, client: client, method: method, cfg: cfg, logger: logger, notifier: notifier}
}

// Start launches the delivery loop against topic and returns immediately.
func (d *Deliverer) Start(topic string) {
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	go d.run(topic)
}

// Stop signals the loop to exit and waits for it.
func (d *Deliverer) Stop() {
	if d.stopCh == nil {
		return
	}
	close(d.stopCh)
	<-d.doneCh
}

func (d *Deliverer) run(topic string) {
	defer close(d.doneCh)
	ticker := time.NewTicker(d.cfg.DequeueRetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.dequeueCycle(topic)
		}
	}
}

// dequeueCycle implements spec.md §4.8's Delivery loop: select up to
// BatchSize messages ordered by pos, drop expired ones without sending,
// send the rest, and delete each row once its send succeeds.
func (d *Deliverer) dequeueCycle(topic string) {
	q := &db.Query{
		Model:  d.producer.model,
		Index:  idxProducerPos,
		Topic:  topic,
		Equals: []value.Value{value.String(d.producer.id)},
		Limit:  d.cfg.BatchSize,
		Order:  db.Asc,
	}
	units, err := q.Exec(d.producer.store)
	if err != nil {
		if d.logger != nil {
			logctx.LogError(logctx.Error, err, d.logger, "mq dequeue query failed", nil, "mq")
		}
		return
	}

	now := time.Now()
	ctx := context.Background()
	for _, u := range units {
		msg := messageFromUnit(u)
		if !msg.ExpireAt.IsNull() && !msg.ExpireAt.DT.After(now) {
			d.deleteMessage(topic, msg)
			d.notify(NotificationExpired, msg)
			continue
		}
		if err := d.send(ctx, topic, msg); err != nil {
			if d.logger != nil {
				logctx.LogError(logctx.Warn, err, d.logger, "mq message send failed, retrying next cycle", nil, "mq")
			}
			d.notify(NotificationFailed, msg)
			continue
		}
		d.deleteMessage(topic, msg)
		d.notify(NotificationDelivered, msg)
	}
}

func (d *Deliverer) notify(t NotificationType, msg *Message) {
	if d.notifier == nil {
		return
	}
	d.notifier.publish(&Notification{
		Type:           t,
		TargetObjectID: msg.TargetObjectID,
		ObjectType:     msg.ObjectType,
		Payload:        msg.Notification,
	})
}

func (d *Deliverer) send(ctx context.Context, topic string, msg *Message) error {
	_, err := d.client.Call(ctx, d.method, msg.ObjectType, topic, msg.Content)
	return err
}

func (d *Deliverer) deleteMessage(topic string, msg *Message) {
	u := msg.toUnit(d.producer.model.Schema)
	if err := d.producer.store.Delete(topic, d.producer.model, msg.ObjectID, u, time.Time{}); err != nil {
		if d.logger != nil {
			logctx.LogError(logctx.Error, err, d.logger, "deleting delivered mq message failed", nil, "mq")
		}
	}
}
