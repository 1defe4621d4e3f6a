// Package httpapi exposes the decoder and synthesizer over HTTP. It sits
// outside the core gp2midi package — conversion is a pure, in-process
// operation — and exists only to give callers that want a service instead
// of a library a thin conventional wrapper.
package httpapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/fervidos/gp2midi"
)

// NewRouter builds the gin engine serving /api/analyze and /api/convert.
// CORS origins are configurable via CORS_ORIGINS (comma-separated),
// defaulting to * for local development.
func NewRouter() *gin.Engine {
	r := gin.Default()

	originsEnv := os.Getenv("CORS_ORIGINS")
	if originsEnv == "" {
		originsEnv = "*"
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins: strings.Split(originsEnv, ","),
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type"},
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.POST("/analyze", handleAnalyze)
		api.POST("/convert", handleConvert)
	}

	return r
}

// handleAnalyze accepts a GPIF container in the request body and returns
// its track summaries as JSON.
func handleAnalyze(c *gin.Context) {
	data, err := readBody(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summaries, err := gp2midi.Analyze(data)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summaries)
}

// handleConvert accepts a GPIF container in the request body and returns a
// Standard MIDI File. Query params: high_fidelity (bool, default true),
// tracks (comma-separated track numbers to keep; default all).
func handleConvert(c *gin.Context) {
	data, err := readBody(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	song, err := gp2midi.Parse(data)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	if tracksParam := c.Query("tracks"); tracksParam != "" {
		song = gp2midi.SelectTracks(song, parseTrackNumbers(tracksParam))
	}

	opts := gp2midi.DefaultOptions()
	if hf := c.Query("high_fidelity"); hf != "" {
		opts.HighFidelity = hf != "false" && hf != "0"
	}

	midiData, err := gp2midi.Synthesize(song, opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Data(http.StatusOK, "audio/midi", midiData)
}

func readBody(c *gin.Context) ([]byte, error) {
	data, err := c.GetRawData()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, gp2midi.ErrInvalidContainer
	}
	return data, nil
}

func parseTrackNumbers(csv string) []int {
	var nums []int
	for _, tok := range strings.Split(csv, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if n, err := strconv.Atoi(tok); err == nil {
			nums = append(nums, n)
		}
	}
	return nums
}
