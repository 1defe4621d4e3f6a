package gp2midi

import (
	"archive/zip"
	"bytes"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
)

// scoreCandidates lists the paths a GPIF score document may live at inside
// the container, searched in this order.
var scoreCandidates = []string{"score.gpif", "Content/score.gpif"}

// Parse decodes a zipped GPIF container into a Song.
//
// Only structural problems are returned as errors: an unreadable ZIP, a
// missing score document, or XML that isn't well-formed. Everything below
// that level — a dangling ID reference, a malformed numeric field — is
// recovered in place so one bad value never aborts the decode. Dangling
// references, a malformed tempo and malformed bend points are logged; other
// malformed fields silently take their default.
func Parse(data []byte) (*Song, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContainer, err)
	}

	scoreFile := findScoreFile(zr)
	if scoreFile == nil {
		return nil, fmt.Errorf("%w: score.gpif not found in container", ErrInvalidContainer)
	}

	rc, err := scoreFile.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContainer, err)
	}
	defer rc.Close()

	root, err := parseXMLTree(rc)
	if err != nil {
		return nil, err
	}

	return decodeSong(root), nil
}

func findScoreFile(zr *zip.Reader) *zip.File {
	for _, candidate := range scoreCandidates {
		for _, f := range zr.File {
			if f.Name == candidate {
				return f
			}
		}
	}
	return nil
}

func decodeSong(root *xmlElement) *Song {
	idx := buildIDIndex(root)
	rhythms := parseRhythmTable(root)

	song := &Song{Title: "Untitled", Artist: "Unknown", Tempo: 120}
	decodeMetadata(root, song)
	decodeTempo(root, song)

	trackIDs := decodeTrackRefs(root)
	trackByID := decodeTracks(root, idx, trackIDs, song)
	decodeStructure(root, idx, rhythms, trackIDs, trackByID, song)

	return song
}

func decodeMetadata(root *xmlElement, song *Song) {
	if title, ok := root.childText("Title"); ok && title != "" {
		song.Title = title
	}
	if artist, ok := root.childText("Artist"); ok && artist != "" {
		song.Artist = artist
	}
}

func decodeTempo(root *xmlElement, song *Song) {
	masterTrack := root.child("MasterTrack")
	if masterTrack == nil {
		return
	}
	automations := masterTrack.child("Automations")
	if automations == nil {
		return
	}

	for _, auto := range automations.childrenNamed("Automation") {
		typ, _ := auto.childText("Type")
		if typ != "Tempo" {
			continue
		}

		val, ok := auto.childText("Value")
		if !ok {
			continue
		}
		fields := strings.Fields(val)
		if len(fields) == 0 {
			continue
		}

		bpm, err := strconv.Atoi(fields[0])
		if err != nil {
			log.Printf("gp2midi: malformed tempo value %q, keeping default 120", val)
			continue
		}
		song.Tempo = bpm
		return
	}
}

func decodeTrackRefs(root *xmlElement) []string {
	masterTrack := root.child("MasterTrack")
	if masterTrack == nil {
		return nil
	}
	text, ok := masterTrack.childText("Tracks")
	if !ok {
		return nil
	}
	return refList(text)
}

// decodeTracks resolves the MasterTrack's track-ID list into Song.Tracks,
// returning the ID -> slice-index map decodeStructure needs to attach
// measures to the right track. A dangling track ID is logged and skipped;
// its position in trackIDs is simply absent from the returned map.
func decodeTracks(root *xmlElement, idx idIndex, trackIDs []string, song *Song) map[string]int {
	trackByID := make(map[string]int, len(trackIDs))

	for i, tid := range trackIDs {
		trackElem, ok := idx.lookup("Track", tid)
		if !ok {
			log.Printf("gp2midi: dangling track reference %q, skipping", tid)
			continue
		}

		track := Track{Number: i + 1, Channel: i % 16}

		if name, ok := trackElem.childText("Name"); ok && name != "" {
			track.Name = name
		} else {
			track.Name = fmt.Sprintf("Track %d", i+1)
		}

		decodeTrackSound(trackElem, &track)

		if instSet := trackElem.child("InstrumentSet"); instSet != nil {
			if typ, ok := instSet.childText("Type"); ok && typ == "drumKit" {
				track.IsPercussion = true
				track.Channel = 9
			}
		}

		decodeTrackTuning(trackElem, &track)

		trackByID[tid] = len(song.Tracks)
		song.Tracks = append(song.Tracks, track)
	}

	return trackByID
}

func decodeTrackSound(trackElem *xmlElement, track *Track) {
	sounds := trackElem.child("Sounds")
	if sounds == nil {
		return
	}
	sound := sounds.child("Sound")
	if sound == nil {
		return
	}
	midiNode := sound.child("MIDI")
	if midiNode == nil {
		return
	}

	if p, ok := midiNode.childText("Program"); ok {
		if v, err := strconv.Atoi(p); err == nil {
			track.Program = v
		}
	}

	if bank := midiNode.child("Bank"); bank != nil {
		if msb, ok := bank.childText("MSB"); ok {
			if v, err := strconv.Atoi(msb); err == nil {
				track.BankMSB = &v
			}
		}
		if lsb, ok := bank.childText("LSB"); ok {
			if v, err := strconv.Atoi(lsb); err == nil {
				track.BankLSB = &v
			}
		}
	}
}

func decodeTrackTuning(trackElem *xmlElement, track *Track) {
	properties := trackElem.child("Properties")
	if properties == nil {
		return
	}
	for _, p := range properties.childrenNamed("Property") {
		name, ok := p.attr("name")
		if !ok || name != "Tuning" {
			continue
		}
		pitches, ok := p.childText("Pitches")
		if !ok {
			return
		}
		for _, tok := range strings.Fields(pitches) {
			if v, err := strconv.Atoi(tok); err == nil {
				track.Tuning = append(track.Tuning, v)
			}
		}
		return
	}
}

// decodeStructure walks MasterBars x Tracks, maintaining one tick cursor
// per track position in trackIDs. For every resolved track the cursor
// advances by the full measure length, whether or not its bar content
// resolved, so a dangling bar reference never drifts later measures. A
// dangling track gets no measures and its cursor is never read.
func decodeStructure(root *xmlElement, idx idIndex, rhythms map[string]float64, trackIDs []string, trackByID map[string]int, song *Song) {
	masterBars := findDescendant(root, "MasterBars")
	if masterBars == nil {
		return
	}
	cursors := make([]uint32, len(trackIDs))

	for mbIdx, mb := range masterBars.childrenNamed("MasterBar") {
		numerator, denominator := 4, 4
		if ts, ok := mb.childText("Time"); ok {
			if n, d, ok := parseTimeSignature(ts); ok {
				numerator, denominator = n, d
			}
		}
		measureLength := uint32(math.Round(float64(numerator) * TicksPerQuarter * 4 / float64(denominator)))

		barIDsText, _ := mb.childText("Bars")
		barIDs := refList(barIDsText)

		for k, tid := range trackIDs {
			trackIdx, ok := trackByID[tid]
			if !ok {
				continue
			}
			track := &song.Tracks[trackIdx]

			measure := Measure{Number: mbIdx + 1, Numerator: numerator, Denominator: denominator}

			if k < len(barIDs) && barIDs[k] != "" {
				if barElem, ok := idx.lookup("Bar", barIDs[k]); ok {
					decodeBar(barElem, idx, rhythms, cursors[k], &measure)
				} else {
					log.Printf("gp2midi: dangling bar reference %q, emitting empty measure", barIDs[k])
				}
			}

			track.Measures = append(track.Measures, measure)
			cursors[k] += measureLength
		}
	}
}

func parseTimeSignature(ts string) (numerator, denominator int, ok bool) {
	parts := strings.SplitN(ts, "/", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	num, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	den, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || den == 0 {
		return 0, 0, false
	}
	return num, den, true
}

func decodeBar(barElem *xmlElement, idx idIndex, rhythms map[string]float64, cursorStart uint32, measure *Measure) {
	voicesText, _ := barElem.childText("Voices")

	for _, vid := range refList(voicesText) {
		voiceElem, ok := idx.lookup("Voice", vid)
		if !ok {
			log.Printf("gp2midi: dangling voice reference %q, skipping", vid)
			continue
		}

		voiceCursor := cursorStart
		beatsText, _ := voiceElem.childText("Beats")

		for _, bid := range refList(beatsText) {
			beatElem, ok := idx.lookup("Beat", bid)
			if !ok {
				log.Printf("gp2midi: dangling beat reference %q, skipping", bid)
				continue
			}

			duration := decodeBeatDuration(beatElem, rhythms)
			beat := Beat{StartTime: voiceCursor, Duration: duration}

			notesText, _ := beatElem.childText("Notes")
			for _, nid := range refList(notesText) {
				noteElem, ok := idx.lookup("Note", nid)
				if !ok {
					log.Printf("gp2midi: dangling note reference %q, skipping", nid)
					continue
				}
				beat.Notes = append(beat.Notes, decodeNote(noteElem))
			}

			if text, ok := beatElem.childText("Text"); ok && text != "" {
				beat.Text = text
			}

			measure.Beats = append(measure.Beats, beat)
			voiceCursor += duration
		}
	}
}

func decodeBeatDuration(beatElem *xmlElement, rhythms map[string]float64) uint32 {
	rhythmRef := beatElem.child("Rhythm")
	if rhythmRef == nil {
		return TicksPerQuarter
	}
	ref, ok := rhythmRef.attr("ref")
	if !ok {
		return TicksPerQuarter
	}
	fraction, ok := rhythms[ref]
	if !ok {
		return TicksPerQuarter
	}
	return uint32(math.Round(TicksPerQuarter * fraction))
}

var notePropValueTags = []string{"Number", "Int", "Fret", "String"}

// propInt reads the first present payload tag of a Note Property and
// coerces it through float64, the way GPIF occasionally writes integers as
// "60.0". An absent or unparsable value yields 0 — callers that need a
// different default (e.g. Velocity's 100) only call this when the property
// itself is present.
func propInt(prop *xmlElement) int {
	for _, tag := range notePropValueTags {
		text, ok := prop.childText(tag)
		if !ok || text == "" {
			continue
		}
		if v, err := strconv.ParseFloat(text, 64); err == nil {
			return int(v)
		}
	}
	return 0
}

func decodeNote(noteElem *xmlElement) Note {
	note := Note{String: 1, Velocity: 100, Type: NoteNormal}

	props := make(map[string]*xmlElement)
	if propsNode := noteElem.child("Properties"); propsNode != nil {
		for _, p := range propsNode.childrenNamed("Property") {
			if name, ok := p.attr("name"); ok {
				props[name] = p
			}
		}
	}

	if p, ok := props["Fret"]; ok {
		note.Fret = propInt(p)
	}
	if p, ok := props["String"]; ok {
		note.String = propInt(p) + 1
	}
	if p, ok := props["Velocity"]; ok {
		note.Velocity = propInt(p)
	}
	if p, ok := props["Midi"]; ok {
		v := propInt(p)
		note.MidiNumber = &v
	}

	if tie := noteElem.child("Tie"); tie != nil {
		if dest, ok := tie.attr("destination"); ok && dest == "true" {
			note.Type = NoteTie
		}
	}

	if p, ok := props["Bends"]; ok {
		if points := decodeBendPoints(p); len(points) > 0 {
			note.Effects = append(note.Effects, Effect{Type: EffectBend, BendPoints: points})
		}
	}

	return note
}

func decodeBendPoints(prop *xmlElement) []BendPoint {
	var points []BendPoint
	for _, pt := range prop.childrenNamed("Point") {
		posText, _ := pt.childText("Position")
		valText, _ := pt.childText("Value")
		pos, errPos := strconv.Atoi(posText)
		val, errVal := strconv.Atoi(valText)
		if errPos != nil || errVal != nil {
			log.Printf("gp2midi: malformed bend point (position=%q value=%q), skipping", posText, valText)
			continue
		}
		points = append(points, BendPoint{Position: pos, Value: val})
	}
	return points
}
