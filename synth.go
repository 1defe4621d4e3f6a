package gp2midi

import (
	"bytes"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// Bend geometry. A GPIF bend unit is 1/50th of a semitone; the pitch wheel
// spans ±pitchBendRangeSemitones across its 14-bit range once the RPN
// setup below takes effect.
const (
	bendUnitsPerSemitone    = 50.0
	bendStepTicks           = 30
	pitchBendRangeSemitones = 12
)

// Options controls synthesis-time choices that don't change the IR, only
// how it's rendered to MIDI.
type Options struct {
	// HighFidelity gives every non-percussion track up to 6 channels, one
	// per string, so simultaneous bends on different strings don't fight
	// over a single pitch wheel. Off, every track renders to one channel.
	HighFidelity bool
}

func DefaultOptions() Options {
	return Options{HighFidelity: true}
}

type midiEvent struct {
	time uint32
	msg  midi.Message
}

// Synthesize renders a Song to a Standard MIDI File, type 1, one track per
// Song track plus a conductor track carrying tempo.
func Synthesize(song *Song, opts Options) ([]byte, error) {
	out := smf.NewSMF1()
	out.TimeFormat = smf.MetricTicks(TicksPerQuarter)

	out.Add(conductorTrack(song.Tempo))

	channels := newChannelManager()
	for _, track := range song.Tracks {
		out.Add(renderTrack(track, opts, channels))
	}

	var buf bytes.Buffer
	_, err := out.WriteTo(&buf)
	return buf.Bytes(), err
}

func conductorTrack(bpm int) smf.Track {
	var tr smf.Track
	tr.Add(0, smf.MetaTempo(float64(bpm)))
	tr.Add(0, smf.EOT)
	return tr
}

func renderTrack(track Track, opts Options, channels *ChannelManager) smf.Track {
	var tr smf.Track
	tr.Add(0, smf.MetaTrackSequenceName(track.Name))

	channelCount := 1
	if opts.HighFidelity && !track.IsPercussion {
		channelCount = 6
	}
	chs := channels.allocate(track.Number, channelCount, track.IsPercussion)

	for _, ch := range chs {
		uch := uint8(ch)
		if track.BankMSB != nil {
			tr.Add(0, midi.ControlChange(uch, 0, uint8(clampByte(*track.BankMSB))))
		}
		if track.BankLSB != nil {
			tr.Add(0, midi.ControlChange(uch, 32, uint8(clampByte(*track.BankLSB))))
		}
		tr.Add(0, midi.ProgramChange(uch, uint8(clampByte(track.Program))))
		for _, ev := range pitchBendRangeSetup(uch) {
			tr.Add(0, ev)
		}
	}

	events := buildEvents(track, opts, chs)
	sort.SliceStable(events, func(i, j int) bool { return events[i].time < events[j].time })

	var lastTime uint32
	for _, ev := range events {
		delta := int64(ev.time) - int64(lastTime)
		if delta < 0 {
			delta = 0
		}
		tr.Add(uint32(delta), ev.msg)
		lastTime = ev.time
	}

	tr.Add(0, smf.EOT)
	return tr
}

// pitchBendRangeSetup is the standard RPN sequence that sets the pitch
// wheel's range to pitchBendRangeSemitones semitones, followed by the
// RPN-null reset so later CC6/CC38 writes (none, here) can't be
// misinterpreted as further RPN data.
func pitchBendRangeSetup(ch uint8) []midi.Message {
	return []midi.Message{
		midi.ControlChange(ch, 101, 0),
		midi.ControlChange(ch, 100, 0),
		midi.ControlChange(ch, 6, pitchBendRangeSemitones),
		midi.ControlChange(ch, 38, 0),
		midi.ControlChange(ch, 101, 127),
		midi.ControlChange(ch, 100, 127),
	}
}

func buildEvents(track Track, opts Options, channels []int) []midiEvent {
	var events []midiEvent

	useString := opts.HighFidelity && !track.IsPercussion && len(channels) > 1

	for _, measure := range track.Measures {
		for _, beat := range measure.Beats {
			for _, note := range beat.Notes {
				if note.Type == NoteRest || note.Type == NoteDead {
					continue
				}

				pitch := renderPitch(track, note)
				velocity := clampByte(note.Velocity)

				channel := channels[0]
				if useString {
					channel = channels[mod(note.String-1, len(channels))]
				}
				uch := uint8(channel)

				startAbs := beat.StartTime
				endAbs := beat.StartTime + beat.Duration

				events = append(events, midiEvent{time: startAbs, msg: midi.NoteOn(uch, pitch, uint8(velocity))})
				events = append(events, midiEvent{time: endAbs, msg: midi.NoteOff(uch, pitch)})
				events = append(events, bendEvents(note, uch, startAbs, beat.Duration)...)
			}
		}
	}

	return events
}

func renderPitch(track Track, note Note) uint8 {
	if note.MidiNumber != nil {
		return uint8(clampByte(*note.MidiNumber))
	}

	pitch := note.Fret
	if !track.IsPercussion {
		idx := note.String - 1
		if idx >= 0 && idx < len(track.Tuning) {
			pitch += track.Tuning[idx]
		}
	}
	return uint8(clampByte(pitch))
}

func clampByte(v int) int {
	if v < 0 {
		return 0
	}
	if v > 127 {
		return 127
	}
	return v
}

// mod is a non-negative modulo: Go's % keeps the sign of its left operand,
// which breaks a channel-rotation index for String values below 1.
func mod(a, n int) int {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}

// bendEvents renders the first BEND effect on note, if any, into a series
// of pitch-wheel messages sampled at bendStepTicks intervals between
// consecutive points. Any bend with at least one point always ends with a
// reset-to-center message at the note's end, regardless of how many points
// it had.
func bendEvents(note Note, channel uint8, startAbs, duration uint32) []midiEvent {
	var bend *Effect
	for i := range note.Effects {
		if note.Effects[i].Type == EffectBend && len(note.Effects[i].BendPoints) > 0 {
			bend = &note.Effects[i]
			break
		}
	}
	if bend == nil {
		return nil
	}

	points := make([]BendPoint, len(bend.BendPoints))
	copy(points, bend.BendPoints)
	sort.SliceStable(points, func(i, j int) bool { return points[i].Position < points[j].Position })

	positionTick := func(pos int) uint32 {
		return startAbs + uint32(round(float64(pos)*float64(duration)/100.0))
	}

	var events []midiEvent

	if len(points) == 1 {
		events = append(events, midiEvent{
			time: positionTick(points[0].Position),
			msg:  midi.Pitchbend(channel, wheelValue(points[0].Value)),
		})
	} else {
		for i := 0; i < len(points)-1; i++ {
			p1, p2 := points[i], points[i+1]
			t1, t2 := positionTick(p1.Position), positionTick(p2.Position)

			if t2 <= t1 {
				events = append(events, midiEvent{time: t1, msg: midi.Pitchbend(channel, wheelValue(p1.Value))})
				continue
			}

			steps := int(t2-t1) / bendStepTicks
			if steps < 1 {
				steps = 1
			}
			for s := 0; s <= steps; s++ {
				frac := float64(s) / float64(steps)
				tick := t1 + uint32(round(frac*float64(t2-t1)))
				value := p1.Value + int(round(frac*float64(p2.Value-p1.Value)))
				events = append(events, midiEvent{time: tick, msg: midi.Pitchbend(channel, wheelValue(value))})
			}
		}
	}

	events = append(events, midiEvent{time: startAbs + duration, msg: midi.Pitchbend(channel, 0)})

	return events
}

// wheelValue converts a GPIF bend-unit delta into a 14-bit-signed
// pitch-wheel offset under the RPN range configured in
// pitchBendRangeSetup.
func wheelValue(units int) int16 {
	semitones := float64(units) / bendUnitsPerSemitone
	wheel := round(semitones / pitchBendRangeSemitones * 8192)
	if wheel > 8191 {
		wheel = 8191
	}
	if wheel < -8192 {
		wheel = -8192
	}
	return int16(wheel)
}

func round(f float64) int {
	if f >= 0 {
		return int(f + 0.5)
	}
	return int(f - 0.5)
}
