package impl

import (
	"fmt"
	"strings"
)

// StrictLegality requires every act to cite an identifiable legal basis.
func StrictLegality(p Payload) Result {
	basis, ok := text(p["legal_basis_id"])
	if !ok {
		return fail(map[string]any{"legal_basis_id": nil},
			"legal_basis_id is required: an act without a legal basis is invalid")
	}
	return pass(map[string]any{"legal_basis_id": clip(basis, 80)})
}

// JointLiabilityTrigger requires a flagged irregularity to carry the
// reference of its referral to external control.
func JointLiabilityTrigger(p Payload) Result {
	flagged := p["irregularity_flagged"]
	if !truthy(flagged) {
		if flagged == nil {
			flagged = false
		}
		return pass(map[string]any{"irregularity_flagged": flagged})
	}
	ref, ok := text(p["external_control_event_ref"])
	if !ok {
		return fail(map[string]any{"irregularity_flagged": true, "external_control_event_ref": nil},
			"irregularity_flagged requires external_control_event_ref: the referral to external control must be evidenced")
	}
	return pass(map[string]any{
		"irregularity_flagged":       true,
		"external_control_event_ref": clip(ref, 100),
	})
}

// SegregationOfDuties forbids the person who registers an act from also
// auditing it.
func SegregationOfDuties(p Payload) Result {
	registeredBy, ok := text(p["registered_by"])
	if !ok {
		return fail(map[string]any{"registered_by": nil},
			"registered_by is required to check segregation of duties")
	}
	auditedBy, ok := text(p["audited_by"])
	if !ok {
		return fail(map[string]any{"audited_by": nil},
			"audited_by is required to check segregation of duties")
	}
	if registeredBy == auditedBy {
		return fail(map[string]any{"same_user": true},
			fmt.Sprintf("registered_by and audited_by are both %q: segregation of duties violated", registeredBy))
	}
	return pass(map[string]any{"segregated": true})
}

var maskedValues = map[string]struct{}{"***": {}, "[REDACTED]": {}}

// ConfidentialityMasking requires declared sensitive fields to be absent or
// masked in the public projection of a record holding personal data.
func ConfidentialityMasking(p Payload) Result {
	if !truthy(p["contains_personal_data"]) {
		return pass(map[string]any{"contains_personal_data": false})
	}
	sensitive := stringList(p["sensitive_fields"])
	if len(sensitive) == 0 {
		return fail(map[string]any{"contains_personal_data": true, "sensitive_fields": []string{}},
			"contains_personal_data is set but sensitive_fields is empty: masking cannot be verified")
	}

	public, _ := p["public_payload"].(map[string]any)
	var exposed []string
	for _, field := range sensitive {
		v, present := public[field]
		if !present || v == nil {
			continue
		}
		if s, isString := v.(string); isString {
			if _, masked := maskedValues[s]; masked {
				continue
			}
		}
		exposed = append(exposed, field)
	}
	if len(exposed) > 0 {
		return fail(map[string]any{"exposed_fields": exposed, "total_sensitive": len(sensitive)},
			"sensitive fields exposed without masking in public_payload: "+strings.Join(exposed, ", "))
	}
	return pass(map[string]any{"contains_personal_data": true, "masked_fields": len(sensitive)})
}

const personnelSpendingLimit = 0.6

// PersonnelSpendingLimit caps personnel spending at 60% of net current
// revenue. Other spending types are not subject to it.
func PersonnelSpendingLimit(p Payload) Result {
	if p["spending_type"] != "PERSONNEL" {
		return pass(map[string]any{
			"spending_type": p["spending_type"],
			"applicable":    false,
		})
	}
	amount, amountOK := number(p["declared_amount"])
	revenue, revenueOK := number(p["net_current_revenue"])
	if !amountOK || !revenueOK {
		return fail(map[string]any{
			"declared_amount":     p["declared_amount"],
			"net_current_revenue": p["net_current_revenue"],
		}, "declared_amount and net_current_revenue must be numeric to apply the spending limit")
	}
	if revenue <= 0 {
		return fail(map[string]any{"net_current_revenue": revenue},
			"net_current_revenue must be positive")
	}

	ratio := amount / revenue
	evidence := map[string]any{
		"ratio_pct": round4(ratio * 100),
		"limit_pct": 60,
	}
	if ratio > personnelSpendingLimit {
		return fail(evidence, fmt.Sprintf(
			"personnel spending is %.2f%% of net current revenue, above the 60%% limit", ratio*100))
	}
	return pass(evidence)
}
