package model

// MatchKind discriminates the two matching algorithms.
type MatchKind string

const (
	KindCDS MatchKind = "CDS"
	KindPPP MatchKind = "PPP"
)

// MatchResult is the closed sum of CDSMatch and PPPMatch.
type MatchResult interface {
	Kind() MatchKind
	MatchedImage() Image
	MatchFiles() Files
	isMatchResult()
}

// MatchBase carries the fields shared by both match kinds.
type MatchBase struct {
	Image    Image
	Files    Files
	Mirrored bool
}

// CDSMatch is a color depth search result.
type CDSMatch struct {
	MatchBase
	NormalizedScore float64
	MatchingPixels  int
}

// PPPMatch is a patch-per-pixel match result.
type PPPMatch struct {
	MatchBase
	PPPRank  float64
	PPPScore int
}

func (*CDSMatch) Kind() MatchKind { return KindCDS }
func (*PPPMatch) Kind() MatchKind { return KindPPP }

func (m *CDSMatch) MatchedImage() Image { return m.Image }
func (m *PPPMatch) MatchedImage() Image { return m.Image }

func (m *CDSMatch) MatchFiles() Files { return m.Files }
func (m *PPPMatch) MatchFiles() Files { return m.Files }

func (*CDSMatch) isMatchResult() {}
func (*PPPMatch) isMatchResult() {}

// Matches is the content of one match-directory file: a target image and
// its ranked candidate matches.
type Matches struct {
	InputImage Image
	Results    []MatchResult
}
