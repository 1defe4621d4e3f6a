// Command gp2midi converts Guitar Pro GPIF tablature to Standard MIDI
// Files from the command line.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/fervidos/gp2midi"
)

func main() {
	analyzeOnly := flag.Bool("analyze", false, "Print track information as JSON instead of synthesizing MIDI")
	highFidelity := flag.Bool("high-fidelity", true, "Allocate up to 6 channels per track for independent per-string bends")
	filterTracks := flag.String("tracks", "", "Comma-separated list of track numbers to keep (default: all)")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <file.gp> [output.mid]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	filename := flag.Arg(0)
	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", filename, err)
		os.Exit(1)
	}

	if *analyzeOnly {
		summaries, err := gp2midi.Analyze(data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error analyzing %s: %v\n", filename, err)
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summaries); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding output: %v\n", err)
			os.Exit(1)
		}
		return
	}

	song, err := gp2midi.Parse(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing %s: %v\n", filename, err)
		os.Exit(1)
	}

	if *filterTracks != "" {
		song = gp2midi.SelectTracks(song, parseTrackNumbers(*filterTracks))
	}

	opts := gp2midi.DefaultOptions()
	opts.HighFidelity = *highFidelity

	midiData, err := gp2midi.Synthesize(song, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error synthesizing MIDI: %v\n", err)
		os.Exit(1)
	}

	outputPath := flag.Arg(1)
	if outputPath == "" {
		outputPath = defaultOutputPath(filename)
	}

	if err := os.WriteFile(outputPath, midiData, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", outputPath, err)
		os.Exit(1)
	}
}

func parseTrackNumbers(csv string) []int {
	var nums []int
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			if i > start {
				var n int
				fmt.Sscanf(csv[start:i], "%d", &n)
				nums = append(nums, n)
			}
			start = i + 1
		}
	}
	return nums
}

func defaultOutputPath(inputPath string) string {
	for i := len(inputPath) - 1; i >= 0; i-- {
		if inputPath[i] == '.' {
			return inputPath[:i] + ".mid"
		}
		if inputPath[i] == '/' {
			break
		}
	}
	return inputPath + ".mid"
}
