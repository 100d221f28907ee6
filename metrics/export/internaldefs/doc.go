// Package internaldefs holds the metric names and bucket bounds shared by the
// OTel and Prometheus exporters, so both publish identical series.
package internaldefs
