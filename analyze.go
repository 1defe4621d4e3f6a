package gp2midi

// TrackSummary is a lightweight description of one track, returned by
// Analyze without requiring a full synthesis pass.
type TrackSummary struct {
	ID           int
	Name         string
	Program      int
	IsPercussion bool

	// Channel is the channel the decoder provisionally assigned the track,
	// not the channel Synthesize will ultimately allocate — the two can
	// differ once high-fidelity per-string allocation or
	// percussion-collision fallback kicks in.
	Channel int
}

// Analyze decodes a GPIF container and reports its tracks without
// synthesizing MIDI, for callers that only need the score's shape.
func Analyze(data []byte) ([]TrackSummary, error) {
	song, err := Parse(data)
	if err != nil {
		return nil, err
	}

	summaries := make([]TrackSummary, len(song.Tracks))
	for i, t := range song.Tracks {
		summaries[i] = TrackSummary{
			ID:           t.Number,
			Name:         t.Name,
			Program:      t.Program,
			IsPercussion: t.IsPercussion,
			Channel:      t.Channel,
		}
	}
	return summaries, nil
}
