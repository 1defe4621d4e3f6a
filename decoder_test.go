package gp2midi

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
)

// buildGPIF packs xmlBody as score.gpif inside a ZIP archive, the way a .gp
// file always does.
func buildGPIF(t *testing.T, xmlBody string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("score.gpif")
	if err != nil {
		t.Fatalf("creating score.gpif entry: %v", err)
	}
	if _, err := w.Write([]byte(xmlBody)); err != nil {
		t.Fatalf("writing score.gpif: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	return buf.Bytes()
}

const minimalGPIF = `<?xml version="1.0" encoding="UTF-8"?>
<GPIF>
  <Title>Test Song</Title>
  <Artist>Test Artist</Artist>
  <MasterTrack>
    <Tracks>0</Tracks>
    <Automations>
      <Automation>
        <Type>Tempo</Type>
        <Value>140 2</Value>
      </Automation>
    </Automations>
  </MasterTrack>
  <Tracks>
    <Track id="0">
      <Name>Guitar</Name>
      <Properties>
        <Property name="Tuning">
          <Pitches>64 59 55 50 45 40</Pitches>
        </Property>
      </Properties>
      <Sounds>
        <Sound>
          <MIDI>
            <Program>29</Program>
          </MIDI>
        </Sound>
      </Sounds>
    </Track>
  </Tracks>
  <MasterBars>
    <MasterBar>
      <Time>4/4</Time>
      <Bars>0</Bars>
    </MasterBar>
  </MasterBars>
  <Bars>
    <Bar id="0">
      <Voices>0</Voices>
    </Bar>
  </Bars>
  <Voices>
    <Voice id="0">
      <Beats>0 1</Beats>
    </Voice>
  </Voices>
  <Beats>
    <Beat id="0">
      <Rhythm ref="quarter"/>
      <Notes>0</Notes>
    </Beat>
    <Beat id="1">
      <Rhythm ref="quarter"/>
      <Notes>1</Notes>
    </Beat>
  </Beats>
  <Notes>
    <Note id="0">
      <Properties>
        <Property name="Fret"><Fret>3</Fret></Property>
        <Property name="String"><String>5</String></Property>
      </Properties>
    </Note>
    <Note id="1">
      <Properties>
        <Property name="Fret"><Fret>5</Fret></Property>
        <Property name="String"><String>5</String></Property>
      </Properties>
    </Note>
  </Notes>
  <Rhythms>
    <Rhythm id="quarter">
      <NoteValue>Quarter</NoteValue>
    </Rhythm>
  </Rhythms>
</GPIF>`

func TestParse_MinimalScore(t *testing.T) {
	song, err := Parse(buildGPIF(t, minimalGPIF))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if song.Title != "Test Song" {
		t.Errorf("expected title %q, got %q", "Test Song", song.Title)
	}
	if song.Artist != "Test Artist" {
		t.Errorf("expected artist %q, got %q", "Test Artist", song.Artist)
	}
	if song.Tempo != 140 {
		t.Errorf("expected tempo 140, got %d", song.Tempo)
	}

	if len(song.Tracks) != 1 {
		t.Fatalf("expected 1 track, got %d", len(song.Tracks))
	}
	track := song.Tracks[0]
	if track.Name != "Guitar" {
		t.Errorf("expected track name Guitar, got %q", track.Name)
	}
	if track.Program != 29 {
		t.Errorf("expected program 29, got %d", track.Program)
	}
	if len(track.Tuning) != 6 || track.Tuning[0] != 64 {
		t.Errorf("expected standard 6-string tuning starting at 64, got %v", track.Tuning)
	}

	if len(track.Measures) != 1 {
		t.Fatalf("expected 1 measure, got %d", len(track.Measures))
	}
	measure := track.Measures[0]
	if measure.Numerator != 4 || measure.Denominator != 4 {
		t.Errorf("expected 4/4 time, got %d/%d", measure.Numerator, measure.Denominator)
	}
	if len(measure.Beats) != 2 {
		t.Fatalf("expected 2 beats, got %d", len(measure.Beats))
	}
	if measure.Beats[0].StartTime != 0 {
		t.Errorf("expected first beat at tick 0, got %d", measure.Beats[0].StartTime)
	}
	if measure.Beats[1].StartTime != TicksPerQuarter {
		t.Errorf("expected second beat at tick %d, got %d", TicksPerQuarter, measure.Beats[1].StartTime)
	}

	note := measure.Beats[0].Notes[0]
	if note.Fret != 3 {
		t.Errorf("expected fret 3, got %d", note.Fret)
	}
	if note.String != 6 {
		t.Errorf("expected string 6 (0-based 5 + 1), got %d", note.String)
	}
	if note.Velocity != 100 {
		t.Errorf("expected default velocity 100, got %d", note.Velocity)
	}
}

func TestParse_NamespacedDocumentMatchesUnnamespaced(t *testing.T) {
	namespaced := `<?xml version="1.0" encoding="UTF-8"?>
<GPIF xmlns="http://www.guitar-pro.com/GPIF/1.0">
  <Title>NS Song</Title>
  <MasterTrack><Tracks></Tracks></MasterTrack>
  <Tracks></Tracks>
  <MasterBars></MasterBars>
  <Bars></Bars>
  <Voices></Voices>
  <Beats></Beats>
  <Notes></Notes>
  <Rhythms></Rhythms>
</GPIF>`

	song, err := Parse(buildGPIF(t, namespaced))
	if err != nil {
		t.Fatalf("Parse failed on namespaced document: %v", err)
	}
	if song.Title != "NS Song" {
		t.Errorf("expected title to survive namespace stripping, got %q", song.Title)
	}

	plain, err := Parse(buildGPIF(t, strings.Replace(namespaced, ` xmlns="http://www.guitar-pro.com/GPIF/1.0"`, "", 1)))
	if err != nil {
		t.Fatalf("Parse failed on unnamespaced document: %v", err)
	}
	if plain.Title != song.Title || len(plain.Tracks) != len(song.Tracks) {
		t.Errorf("expected unnamespaced parse to match namespaced, got title %q with %d tracks vs %q with %d tracks",
			plain.Title, len(plain.Tracks), song.Title, len(song.Tracks))
	}
}

func TestParse_DanglingTrackReferenceIsSkipped(t *testing.T) {
	xmlBody := `<?xml version="1.0"?>
<GPIF>
  <MasterTrack><Tracks>0 99</Tracks></MasterTrack>
  <Tracks>
    <Track id="0"><Name>Real Track</Name></Track>
  </Tracks>
  <MasterBars></MasterBars>
  <Bars></Bars>
  <Voices></Voices>
  <Beats></Beats>
  <Notes></Notes>
  <Rhythms></Rhythms>
</GPIF>`

	song, err := Parse(buildGPIF(t, xmlBody))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(song.Tracks) != 1 {
		t.Fatalf("expected dangling track id to be skipped, got %d tracks", len(song.Tracks))
	}
	if song.Tracks[0].Name != "Real Track" {
		t.Errorf("expected surviving track to be 'Real Track', got %q", song.Tracks[0].Name)
	}
}

func TestParse_InvalidContainer(t *testing.T) {
	_, err := Parse([]byte("not a zip file"))
	if err == nil {
		t.Fatal("expected an error for a non-ZIP input")
	}
}

func TestParse_MissingScoreDocument(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("unrelated.txt")
	w.Write([]byte("hello"))
	zw.Close()

	_, err := Parse(buf.Bytes())
	if err == nil {
		t.Fatal("expected an error when score.gpif is absent")
	}
}

func TestParseRhythmTable_AugmentationDot(t *testing.T) {
	root, err := parseXMLTree(bytes.NewReader([]byte(`<GPIF>
  <Rhythms>
    <Rhythm id="r1"><NoteValue>Quarter</NoteValue><AugmentationDot count="1"/></Rhythm>
    <Rhythm id="r2"><NoteValue>Eighth</NoteValue></Rhythm>
    <Rhythm id="r3"><NoteValue>Bogus</NoteValue></Rhythm>
  </Rhythms>
</GPIF>`)))
	if err != nil {
		t.Fatalf("parseXMLTree failed: %v", err)
	}

	table := parseRhythmTable(root)
	if got, want := table["r1"], 1.5; got != want {
		t.Errorf("dotted quarter: expected %v, got %v", want, got)
	}
	if got, want := table["r2"], 0.5; got != want {
		t.Errorf("eighth: expected %v, got %v", want, got)
	}
	if got, want := table["r3"], 1.0; got != want {
		t.Errorf("unrecognized note value should fall back to quarter: expected %v, got %v", want, got)
	}
}

func TestDecodeBendPoints_SkipsMalformedPoints(t *testing.T) {
	root, err := parseXMLTree(bytes.NewReader([]byte(`<Property name="Bends">
  <Point><Position>0</Position><Value>0</Value></Point>
  <Point><Position>bogus</Position><Value>100</Value></Point>
  <Point><Position>100</Position><Value>100</Value></Point>
</Property>`)))
	if err != nil {
		t.Fatalf("parseXMLTree failed: %v", err)
	}

	points := decodeBendPoints(root)
	if len(points) != 2 {
		t.Fatalf("expected 2 valid points (malformed one skipped), got %d", len(points))
	}
	if points[0].Position != 0 || points[1].Position != 100 {
		t.Errorf("unexpected point positions: %v", points)
	}
}
