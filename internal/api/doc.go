// Package api hosts the optional operational HTTP server. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /statusz for the publish loop's last-cycle view.
//   - GET /metrics for Prometheus scraping.
package api
