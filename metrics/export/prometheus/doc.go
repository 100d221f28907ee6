// Package prometheus renders engine metrics in Prometheus text exposition
// format. Mount [Exporter.Handler] on an admin listener; nothing is
// registered globally.
//
// Counters are named gootp_*_total. Session validation latency is the only
// histogram and has no _sum series.
package prometheus
