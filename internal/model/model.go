// Package model defines core data structures for cladeguess.
package model

// Candidate is one playable species: the label shown to the player and the
// scientific name of the outline node it is bound to.
type Candidate struct {
	Label      string `json:"name"`
	Scientific string `json:"scientific"`
}

// DecisionRow is one line of the decision report.
type DecisionRow struct {
	Depth   int
	Subject string
	Guess   string
	Max     int
	Avg     float64
	Count   int
}

// SpeciesRow records how many guesses it takes to reach a species.
type SpeciesRow struct {
	Label      string
	Scientific string
	Guesses    int
}

// Summary is the complete analyzed decision tree, ready for serialization.
type Summary struct {
	Dataset    string
	Strategy   string
	Species    int
	MaxGuesses int
	AvgGuesses float64
	Decisions  []DecisionRow
	Ranked     []SpeciesRow
}
