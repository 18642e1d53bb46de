// Package taskstats accounts for the resources consumed by tasks running in a
// search node.
//
// A task samples its resource readings at the boundaries of each accounting
// phase. The start readings are recorded as Metrics and folded into a
// ResourceStats per worker; the end readings complete the open Metrics. When a
// task is unregistered its totals are handed to consumers such as the top-N
// expensive task logger in package topn.
package taskstats
