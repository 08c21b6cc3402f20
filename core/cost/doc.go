// Package cost turns per-round token usage into dollar amounts. It carries a
// small pricing table for the supported models and a Tracker that plugs into
// the orchestration loop's audit callback to accumulate session totals.
package cost
