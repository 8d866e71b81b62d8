// Package occupancy samples room membership and reclaims rooms that stay nearly empty.
//
// A Sampler asks the transport for the membership of one room per tick, walking the rooms in
// primary-key order. Replies arrive later through HandleNames and are stored as samples. The
// Auditor runs on its own, longer cadence: a channel whose latest sample is below the threshold in
// two consecutive audit cycles is removed and departed, unless it is a protected channel.
//
// MetricsWriter and LimitGuard are read-only views over the latest samples; Trimmer bounds the
// sample history.
package occupancy
