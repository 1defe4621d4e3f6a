package gp2midi

import "errors"

// Structural decode failures. These are the only errors Parse returns;
// field-level problems (dangling IDs, malformed numbers) are recovered in
// place instead of aborting the decode.
var (
	// ErrInvalidContainer means the input wasn't a readable ZIP archive, or
	// it didn't contain score.gpif / Content/score.gpif.
	ErrInvalidContainer = errors.New("gp2midi: invalid container")

	// ErrInvalidXML means the score document was not well-formed XML.
	ErrInvalidXML = errors.New("gp2midi: invalid xml")
)
