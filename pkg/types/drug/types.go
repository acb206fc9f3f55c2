// Package drug defines the shared vocabulary of the reconciliation engine:
// canonical column names, marketing statuses, region codes, and the
// DrugRecord view over a tabular row.
package drug

import (
	"sort"
	"strings"
)

// Sentinel values written into table cells when an external lookup fails.
// They are produced only by the resolver/normalizer failure paths and are
// recognised (never fabricated) everywhere else.
const (
	ErrorSentinel = "Error"
	NoneSentinel  = "NONE"
)

// Canonical column names shared across all pipeline stages.  Per-source
// tables are renamed into this schema by source.StandardizeColumns before
// entering the engine.
const (
	ColSourceName      = "source_ingredient_name"
	ColCanonicalID     = "canonical_id"
	ColCanonicalLabel  = "canonical_label"
	ColNormalizedID    = "normalized_id"
	ColNormalizedLabel = "normalized_label"
	ColAlternateIDs    = "alternate_ids"
	ColIsCombination   = "is_combination_therapy"
	ColComponents      = "combination_components"
	ColMarketingStatus = "marketing_status"
	ColProvenance      = "provenance"
	ColApprovalDate    = "approval_date"
	ColATCMain         = "atc_main"
	ColSMILES          = "smiles"
)

// Region identifies a regulatory jurisdiction tracked by the merged list.
type Region string

const (
	RegionUSA Region = "usa"
	RegionEUR Region = "eur"
	RegionJPN Region = "jpn"
	RegionRUS Region = "rus"
	RegionIND Region = "ind"
)

// Regions lists all tracked jurisdictions in canonical order.
var Regions = []Region{RegionUSA, RegionEUR, RegionJPN, RegionRUS, RegionIND}

// ApprovedColumn returns the per-region approval flag column name.
func ApprovedColumn(r Region) string {
	return "approved_" + string(r)
}

// MarketingStatus is the availability classification of a chemical entity.
type MarketingStatus string

const (
	StatusOTC          MarketingStatus = "OTC"
	StatusRX           MarketingStatus = "RX"
	StatusDiscontinued MarketingStatus = "DISCONTINUED"
	StatusUnsure       MarketingStatus = "UNSURE"
)

// MostPermissiveStatus collapses a list of raw per-formulation status strings
// into the single most permissive classification: OTC beats RX beats
// discontinued.  Any status string outside the known set falls through to
// UNSURE; that default is intentional and mirrors upstream registry data.
func MostPermissiveStatus(statuses []string) MarketingStatus {
	hasRX, hasDiscn := false, false
	for _, s := range statuses {
		switch strings.ToUpper(strings.TrimSpace(s)) {
		case "OTC":
			return StatusOTC
		case "RX":
			hasRX = true
		case "DISCN", "DISCONTINUED":
			hasDiscn = true
		}
	}
	if hasRX {
		return StatusRX
	}
	if hasDiscn {
		return StatusDiscontinued
	}
	return StatusUnsure
}

// Component is one constituent ingredient of a combination therapy.  Label
// is the resolver's preferred name for the CURIE; the tabular cell form
// carries only Name and CURIE, so components parsed back from a cell have no
// Label.
type Component struct {
	Name  string
	CURIE string
	Label string
}

// componentSep joins components in tabular form; pairSep joins a component's
// name and curie.  Example cell: "amlodipine=CHEBI:2668|valsartan=CHEBI:9927".
const (
	componentSep = "|"
	pairSep      = "="
)

// FormatComponents renders components into their tabular cell form.
func FormatComponents(comps []Component) string {
	if len(comps) == 0 {
		return ""
	}
	parts := make([]string, 0, len(comps))
	for _, c := range comps {
		parts = append(parts, c.Name+pairSep+c.CURIE)
	}
	return strings.Join(parts, componentSep)
}

// ParseComponents parses the tabular cell form produced by FormatComponents.
// A pair without a curie segment yields an empty CURIE.
func ParseComponents(cell string) []Component {
	if strings.TrimSpace(cell) == "" {
		return nil
	}
	var comps []Component
	for _, part := range strings.Split(cell, componentSep) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, curie, _ := strings.Cut(part, pairSep)
		comps = append(comps, Component{Name: strings.TrimSpace(name), CURIE: strings.TrimSpace(curie)})
	}
	return comps
}

// CURIEPrefix returns the ontology prefix of a CURIE-style identifier, or ""
// when the value has no prefix separator.
func CURIEPrefix(id string) string {
	prefix, _, found := strings.Cut(id, ":")
	if !found {
		return ""
	}
	return prefix
}

// IsSentinel reports whether a cell value is one of the failure sentinels.
func IsSentinel(v string) bool {
	return v == ErrorSentinel || v == NoneSentinel
}

// IDSet is an unordered set of canonical identifiers, the currency of the
// version-diff comparator and the expander's running seen-set.
type IDSet map[string]struct{}

// NewIDSet builds a set from the given identifiers, ignoring empty strings
// and sentinels.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id unless it is empty or a failure sentinel.
func (s IDSet) Add(id string) {
	if id == "" || IsSentinel(id) {
		return
	}
	s[id] = struct{}{}
}

// Has reports membership.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in lexicographic order, for deterministic output.
func (s IDSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
