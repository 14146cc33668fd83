// Package gateway consumes raw platform events from Kafka and feeds them to
// the correlation engine.
//
// # Overview
//
// The chat platform's gateway shards publish every raw event as a JSON
// envelope on a Kafka topic, partitioned by guild so per-guild arrival order
// is preserved. This package subscribes to that topic, decodes each envelope
// into an internal event, and hands it to a Processor.
//
// # Usage
//
//	consumer, err := gateway.NewConsumer(gateway.ConsumerOptions{
//	    Brokers: "kafka:9092",
//	    Logger:  logger,
//	}, correlator)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer consumer.Close()
//	consumer.Run(ctx)
//
// # Graceful Degradation
//
// The consumer handles broker unavailability with exponential backoff
// reconnection. Envelopes that fail to decode are counted and skipped; a
// poison message never stalls the partition.
//
// # Metrics
//
//   - modwatch_gateway_connected (gauge): 1 if subscribed, 0 otherwise
//   - modwatch_gateway_messages_total (counter): Total messages consumed
//   - modwatch_gateway_decode_errors_total (counter): Total undecodable messages
//   - modwatch_gateway_reconnects_total (counter): Total reconnection attempts
package gateway
