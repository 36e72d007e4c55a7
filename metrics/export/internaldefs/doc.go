// Package internaldefs exposes stable metric name definitions shared by
// exporter implementations.
//
// Counter and histogram definitions live here so that the Prometheus and
// OTel exporters expose identical metric names and bucket boundaries.
// Changing a definition here changes every exporter at once.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
