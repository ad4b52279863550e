// Package domain models Dutch COVID-19 surveillance data and the pure
// transforms that reconcile it across municipal boundary reorganizations.
//
// # Data Sources
//
// Case counts and hospital admissions are published by the RIVM (the Dutch
// national institute for public health) as semicolon-delimited CSV extracts,
// one row per municipality per day. Each dataset exists in two vintages
// split at the cutover date of October 3, 2021: a current file covering
// everything after the cutover and an archived file covering everything up
// to and including it. The two files are concatenated, current file first,
// before cleaning; no deduplication is assumed.
//
// Population statistics come from the CBS (the national statistics bureau)
// as one row per region per period. The region column mixes granularities:
// municipality codes ("GM0363"), province codes ("PV27"), and various
// aggregates. Only GM-prefixed rows are municipal.
//
// # Municipality Codes
//
// A municipality code is a stable short identifier ("GM" plus four digits)
// that changes only through official boundary reorganizations. Because the
// surveillance extracts and the population table are published at different
// vintages, the same municipality can appear under different codes across
// sources. Two kinds of reorganization are handled:
//
//   - Mergers and absorptions: an obsolete code maps to exactly one current
//     code (e.g. GM0457 Weesp → GM0363 Amsterdam). Handled by the
//     Harmonizer's remap table; remapping can produce duplicate keys, which
//     are re-aggregated by summing.
//
//   - Dissolution with redistribution: Haaren (GM0788) was dissolved on
//     January 1, 2021 and its territory divided over Oisterwijk (GM0824),
//     Vught (GM0865), Boxtel (GM0757), and Tilburg (GM0855). Its population
//     is split evenly, one quarter to each successor, for every year where
//     Haaren reported a value; the Haaren rows are then removed. Handled by
//     the Harmonizer's split rule.
//
// The case/hospital cleaners additionally apply a hard-coded three-way
// merge (Brielle GM0501, Hellevoetsluis GM0530, Westvoorne GM0614 →
// Voorne aan Zee GM1992) because the surveillance extracts predate that
// reorganization while the boundary geometries postdate it.
//
// # Missing and Malformed Values
//
// Field-level parse failures never abort a batch. An unparseable date drops
// the row; an unparseable count contributes zero to its aggregate. Both are
// tallied in [CleanStats] so callers can surface them. A missing population
// leaves the incidence rates nil: rates are count / population × 100,000
// and are undefined, never zero and never infinite, when the population is
// missing or zero. See [Rate].
package domain
