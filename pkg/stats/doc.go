// Package stats defines the day-keyed statistics snapshot produced by a
// report run, its report-type variants, contributor rankings and deltas.
//
// All day arithmetic happens on Day, which pins boundaries to a single
// report location so that window computation, storage keys and display
// agree on when a day rolls over.
package stats
