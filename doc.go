// Package monitor provides in-process metrics (counters, gauges, rate
// meters and histograms) and reporters that periodically ship their values
// to a Graphite carbon backend over the plaintext line protocol, or to a
// Prometheus remote-write endpoint.
//
// A Meter keeps 1, 5 and 15 minute exponentially-weighted moving averages
// of its event rate. Meters must be ticked at a fixed cadence (5s by
// default); a Scheduler does this along with the periodic report.
//
// Every metric exports an immutable ExportedValue which flattens into named
// facets; reporters only see that value. A meter named "requests" under the
// prefix "web" is written as
//
//	web.requests.count 120 1700000000
//	web.requests.rate1 30.5 1700000000
//	web.requests.rate5 28.1 1700000000
//	web.requests.rate15 27.9 1700000000
//	web.requests.mean 0.5 1700000000
//
// Basic usage:
//
//	config := monitor.DefaultConfig()
//	config.ApplicationName = "web"
//	config.Prefix = "prod.web"
//	config.CarbonAddress = "graphite:2003"
//
//	if err := monitor.Init(config); err != nil {
//	  log.Fatal(err)
//	}
//	defer monitor.Shutdown()
//
//	requests, _ := monitor.NewGlobalMeter("requests")
//	requests.Mark(1)
package monitor
