/*
Package events carries rollout events from plan units, the scheduler and the
deployer to any number of subscribers.

Producers depend on the Publisher interface; Discard drops everything and is
the default when none is configured. Broker fans events out on a buffered
queue. Publish never blocks: with a full queue or a slow subscriber the
event is dropped, because units publish while holding their own lock.
Drops are counted in brokerfleet_events_dropped_total. Publish assigns a
UUID to events without an ID.

Subscribe with event types receives only those types:

	kills := broker.Subscribe(events.EventTaskKilled)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	for ev := range sub {
		fmt.Println(ev.Type, ev.Message)
	}
*/
package events
