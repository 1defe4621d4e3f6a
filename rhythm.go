package gp2midi

import (
	"math"
	"strconv"
)

// rhythmBaseValues maps a Rhythm's NoteValue to a fraction of a quarter
// note, before any augmentation dot is applied.
var rhythmBaseValues = map[string]float64{
	"Whole":   4,
	"Half":    2,
	"Quarter": 1,
	"Eighth":  0.5,
	"16th":    0.25,
	"32nd":    0.125,
	"64th":    0.0625,
	"128th":   0.03125,
}

// parseRhythmTable reads every <Rhythm id="…"> under <Rhythms> and resolves
// it to a fractional quarter-note length, keyed by rhythm ID. An
// unrecognized NoteValue falls back to a quarter note rather than aborting
// the document.
func parseRhythmTable(root *xmlElement) map[string]float64 {
	table := make(map[string]float64)

	rhythms := findDescendant(root, "Rhythms")
	if rhythms == nil {
		return table
	}

	for _, r := range rhythms.childrenNamed("Rhythm") {
		id, ok := r.attr("id")
		if !ok {
			continue
		}

		noteValue, _ := r.childText("NoteValue")
		base, ok := rhythmBaseValues[noteValue]
		if !ok {
			base = rhythmBaseValues["Quarter"]
		}

		if dot := r.child("AugmentationDot"); dot != nil {
			count := 1
			if c, ok := dot.attr("count"); ok {
				if n, err := strconv.Atoi(c); err == nil {
					count = n
				}
			}
			base *= 2 - math.Pow(2, float64(-count))
		}

		table[id] = base
	}

	return table
}
