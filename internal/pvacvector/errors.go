package pvacvector

import (
	"fmt"
	"strings"
)

// InfeasibleError is an ordered pair of peptides that no spacer can join
// without creating a junction binder. It doesn't stop a run; the pair is
// just left without an edge.
type InfeasibleError struct {
	From string
	To   string

	// Attempted are the spacers tried, in rank order
	Attempted []string

	// Violations are the binders found across the attempted spacers
	Violations []Violation
}

// Error names the pair and the spacers tried.
func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("no spacer joins %s to %s without a junction binder (tried %s)",
		e.From, e.To, strings.Join(e.Attempted, ","))
}

// Blocking is a peptide the search kept getting stuck on.
type Blocking struct {
	ID string `json:"id"`

	// DeadEnds is how many times a partial vector ending in the peptide
	// had no way forward
	DeadEnds int `json:"deadEnds"`
}

// AssemblyError is returned when no vector was found.
type AssemblyError struct {
	// Blocking peptides, most frequent dead end first
	Blocking []Blocking

	// Pairs that couldn't be joined with any spacer
	Pairs []*InfeasibleError

	// Steps is the number of extensions the search made
	Steps int

	// Exhaustive is true if every ordering was ruled out, false if the
	// search ran out of budget first
	Exhaustive bool
}

// Error summarizes why the search failed.
func (e *AssemblyError) Error() string {
	var ids []string
	for _, b := range e.Blocking {
		ids = append(ids, b.ID)
	}

	reason := "no ordering of the peptides avoids junction binders"
	if !e.Exhaustive {
		reason = fmt.Sprintf("no vector found within the search budget (%d steps)", e.Steps)
	}
	if len(ids) == 0 {
		return reason
	}
	return fmt.Sprintf("%s: blocking peptides %s", reason, strings.Join(ids, ", "))
}
