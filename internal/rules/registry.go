package rules

import (
	"sort"

	"govengine/internal/rules/impl"
)

// registry binds engine_ref names to compiled implementations. Dispatch
// goes through this table only; the governance gate checks it for drift
// against the rule document and the impl package source.
var registry = map[string]impl.Func{
	"StrictLegality":         impl.StrictLegality,
	"JointLiabilityTrigger":  impl.JointLiabilityTrigger,
	"SegregationOfDuties":    impl.SegregationOfDuties,
	"ConfidentialityMasking": impl.ConfidentialityMasking,
	"PersonnelSpendingLimit": impl.PersonnelSpendingLimit,
}

// Registered returns the engine_ref names in the registration table, sorted.
func Registered() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookup(engineRef string) (impl.Func, bool) {
	fn, ok := registry[engineRef]
	return fn, ok
}
