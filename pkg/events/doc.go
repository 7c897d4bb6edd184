/*
Package events provides an in-memory event broker for composer notifications.

The orchestrator publishes an event for every pool it creates or deletes and
for every host whose configuration file it rewrites or fails to rewrite. The
catalog commands publish backend and tier changes. Subscribers receive events
on buffered channels; a subscriber whose buffer is full misses events rather
than blocking the publisher.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			fmt.Printf("%s %s\n", event.Type, event.Message)
		}
	}()

	broker.Publish(&events.Event{
		Type:     events.EventPoolCreated,
		Message:  "Pool gold created",
		Metadata: map[string]string{"pool": "gold", "backend_name": "gold_backend"},
	})

Publishing on a nil *Broker is a no-op, so components can be built without
one.
*/
package events
