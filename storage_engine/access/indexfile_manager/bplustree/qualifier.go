package bplus

import (
	"fmt"
	"strings"

	"DaemonIndex/types"
)

// Qualifier is one predicate "row[ColumnID] Operator Value".
type Qualifier struct {
	ColumnID int
	Operator types.Operator
	Value    types.Value

	// OrderedNulls compares NULL like any other value (NULL sorts high);
	// otherwise a NULL on either side yields UnknownRV.
	OrderedNulls bool
	UnknownRV    bool
	NegateResult bool
}

func (q Qualifier) String() string {
	not := ""
	if q.NegateResult {
		not = "NOT "
	}
	return fmt.Sprintf("%scol%d %s %s", not, q.ColumnID, q.Operator, q.Value)
}

func (q Qualifier) eval(row types.Row) bool {
	if q.ColumnID < 0 || q.ColumnID >= len(row) {
		return false
	}
	ok := row[q.ColumnID].CompareWith(q.Operator, q.Value, q.OrderedNulls, q.UnknownRV)
	if q.NegateResult {
		return !ok
	}
	return ok
}

// Qualifiers are in conjunctive normal form: every term of quals[0] must
// hold, and each later group quals[i] must have at least one term that
// holds.
type Qualifiers [][]Qualifier

// Qualify evaluates the qualifiers against row. No qualifiers means every
// row qualifies.
func (quals Qualifiers) Qualify(row types.Row) bool {
	if len(quals) == 0 {
		return true
	}
	for _, q := range quals[0] {
		if !q.eval(row) {
			return false
		}
	}
	for _, group := range quals[1:] {
		if len(group) == 0 {
			continue
		}
		held := false
		for _, q := range group {
			if q.eval(row) {
				held = true
				break
			}
		}
		if !held {
			return false
		}
	}
	return true
}

func (quals Qualifiers) String() string {
	if len(quals) == 0 {
		return "true"
	}
	var parts []string
	for _, q := range quals[0] {
		parts = append(parts, q.String())
	}
	for _, group := range quals[1:] {
		var or []string
		for _, q := range group {
			or = append(or, q.String())
		}
		if len(or) > 0 {
			parts = append(parts, "("+strings.Join(or, " OR ")+")")
		}
	}
	return strings.Join(parts, " AND ")
}
