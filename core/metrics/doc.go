// Package metrics defines the sinks that observe scheduling runs. Sinks
// such as the Prometheus, InfluxDB and MQTT implementations in infra record
// one event per planning window and one per finished run, and can be
// combined with NewMultiSink. NewRunSink returns a MultiSink automatically
// when several sinks are configured.
package metrics
