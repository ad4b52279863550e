package domain

import (
	"fmt"
	"math"
	"sort"
)

// SuccessorShare is one receiving municipality of a split rule and the
// fraction of the dissolved municipality's value it receives.
type SuccessorShare struct {
	Code   string
	Weight float64
}

// SplitRule redistributes a dissolved municipality's population over its
// legal successors. Weights must sum to 1.
type SplitRule struct {
	DissolvedCode string
	Successors    []SuccessorShare
}

// Harmonizer maps obsolete municipality codes to their current successors.
// It holds a simple remap table (one obsolete code → one current code) and
// at most one disjoint split rule (one dissolved code → several successors).
// The configuration is fixed at construction and read-only thereafter.
type Harmonizer struct {
	remap map[string]string
	split *SplitRule
}

// NewHarmonizer validates and builds a Harmonizer. It rejects a split rule
// whose dissolved code also appears in the remap table, successor weights
// that do not sum to 1, and remap targets that are themselves obsolete.
func NewHarmonizer(remap map[string]string, split *SplitRule) (*Harmonizer, error) {
	for obsolete, current := range remap {
		if obsolete == current {
			return nil, fmt.Errorf("harmonizer: code %s maps to itself", obsolete)
		}
		if _, ok := remap[current]; ok {
			return nil, fmt.Errorf("harmonizer: remap target %s is itself obsolete", current)
		}
	}

	if split != nil {
		if _, ok := remap[split.DissolvedCode]; ok {
			return nil, fmt.Errorf("harmonizer: %s appears in both the remap table and the split rule", split.DissolvedCode)
		}
		if len(split.Successors) == 0 {
			return nil, fmt.Errorf("harmonizer: split rule for %s has no successors", split.DissolvedCode)
		}
		var sum float64
		for _, s := range split.Successors {
			if s.Weight <= 0 {
				return nil, fmt.Errorf("harmonizer: split successor %s has non-positive weight %g", s.Code, s.Weight)
			}
			sum += s.Weight
		}
		if math.Abs(sum-1) > 1e-9 {
			return nil, fmt.Errorf("harmonizer: split weights for %s sum to %g, want 1", split.DissolvedCode, sum)
		}
	}

	h := &Harmonizer{remap: make(map[string]string, len(remap))}
	for k, v := range remap {
		h.remap[k] = v
	}
	if split != nil {
		s := SplitRule{
			DissolvedCode: split.DissolvedCode,
			Successors:    append([]SuccessorShare(nil), split.Successors...),
		}
		h.split = &s
	}
	return h, nil
}

// Resolve maps an obsolete code to its current successor. Codes outside the
// remap table resolve to themselves.
func (h *Harmonizer) Resolve(code string) string {
	if current, ok := h.remap[code]; ok {
		return current
	}
	return code
}

// ObsoleteCodes returns every code the remap table retires, sorted.
func (h *Harmonizer) ObsoleteCodes() []string {
	codes := make([]string, 0, len(h.remap))
	for code := range h.remap {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// DissolvedCode returns the split rule's dissolved code, or "" when the
// harmonizer has no split rule.
func (h *Harmonizer) DissolvedCode() string {
	if h.split == nil {
		return ""
	}
	return h.split.DissolvedCode
}

// Redistribute applies the split rule to a population table and returns a
// new table. For every year where the dissolved municipality has a non-nil
// population, each successor receives its weighted share: added to the
// successor's existing (code, year) record if one exists, otherwise as a
// new record. All rows for the dissolved code are then removed, including
// nil-population ones. Calling Redistribute on a table where the dissolved
// code is already absent is a no-op, so double application is safe.
func (h *Harmonizer) Redistribute(records []PopulationRecord) []PopulationRecord {
	if h.split == nil {
		return append([]PopulationRecord(nil), records...)
	}

	// Population to hand out, per year.
	dissolved := make(map[int]float64)
	for _, r := range records {
		if r.MunicipalityCode == h.split.DissolvedCode && r.Population != nil {
			dissolved[r.Year] += *r.Population
		}
	}

	out := make([]PopulationRecord, 0, len(records))
	added := make(map[string]map[int]bool) // successor code → years credited via an existing record
	for _, r := range records {
		if r.MunicipalityCode == h.split.DissolvedCode {
			continue
		}
		r := clonePopulation(r)
		if share, ok := h.shareFor(r.MunicipalityCode, dissolved, r.Year); ok {
			if r.Population == nil {
				r.Population = Float(share)
			} else {
				r.Population = Float(*r.Population + share)
			}
			if added[r.MunicipalityCode] == nil {
				added[r.MunicipalityCode] = make(map[int]bool)
			}
			added[r.MunicipalityCode][r.Year] = true
		}
		out = append(out, r)
	}

	// Successors with no record for a redistributed year get a fresh one.
	years := sortedYears(dissolved)
	for _, s := range h.split.Successors {
		for _, year := range years {
			if added[s.Code][year] {
				continue
			}
			out = append(out, PopulationRecord{
				MunicipalityCode: s.Code,
				Year:             year,
				Population:       Float(dissolved[year] * s.Weight),
			})
		}
	}
	return out
}

func (h *Harmonizer) shareFor(code string, dissolved map[int]float64, year int) (float64, bool) {
	total, ok := dissolved[year]
	if !ok {
		return 0, false
	}
	for _, s := range h.split.Successors {
		if s.Code == code {
			return total * s.Weight, true
		}
	}
	return 0, false
}

func clonePopulation(r PopulationRecord) PopulationRecord {
	if r.Population != nil {
		r.Population = Float(*r.Population)
	}
	return r
}

func sortedYears(m map[int]float64) []int {
	years := make([]int, 0, len(m))
	for y := range m {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// DefaultRemapTable covers every municipal merger and absorption between the
// oldest extract vintage and the current boundary set.
func DefaultRemapTable() map[string]string {
	return map[string]string{
		"GM0370": "GM0439", // Beemster → Purmerend
		"GM0398": "GM1980", // Heerhugowaard → Dijk en Waard
		"GM0416": "GM1980", // Langedijk → Dijk en Waard
		"GM0457": "GM0363", // Weesp → Amsterdam
		"GM0501": "GM1992", // Brielle → Voorne aan Zee
		"GM0530": "GM1992", // Hellevoetsluis → Voorne aan Zee
		"GM0614": "GM1992", // Westvoorne → Voorne aan Zee
		"GM0756": "GM1982", // Boxmeer → Land van Cuijk
		"GM0786": "GM1982", // Grave → Land van Cuijk
		"GM0815": "GM1982", // Mill en Sint Hubert → Land van Cuijk
		"GM0856": "GM1991", // Uden → Maashorst
		"GM1684": "GM1982", // Cuijk → Land van Cuijk
		"GM1685": "GM1991", // Landerd → Maashorst
		"GM1702": "GM1982", // Sint Anthonis → Land van Cuijk
		"GM0003": "GM1979", // Appingedam → Eemsdelta
		"GM0010": "GM1979", // Delfzijl → Eemsdelta
		"GM0024": "GM1979", // Loppersum → Eemsdelta
	}
}

// DefaultSplitRule is the Haaren dissolution: GM0788 divided evenly over
// Oisterwijk, Vught, Boxtel, and Tilburg.
func DefaultSplitRule() *SplitRule {
	return &SplitRule{
		DissolvedCode: "GM0788",
		Successors: []SuccessorShare{
			{Code: "GM0824", Weight: 0.25}, // Oisterwijk
			{Code: "GM0865", Weight: 0.25}, // Vught
			{Code: "GM0757", Weight: 0.25}, // Boxtel
			{Code: "GM0855", Weight: 0.25}, // Tilburg
		},
	}
}

// NewDefaultHarmonizer builds a Harmonizer from [DefaultRemapTable] and
// [DefaultSplitRule]. The defaults are internally consistent, so this never
// fails.
func NewDefaultHarmonizer() *Harmonizer {
	h, err := NewHarmonizer(DefaultRemapTable(), DefaultSplitRule())
	if err != nil {
		panic(err)
	}
	return h
}
