// Package rules holds the field-presence and referential-integrity rules for
// NeuronBridge metadata records. Every function here is pure: it inspects a
// decoded record and returns findings, nothing more.
package rules

import (
	"github.com/neuronbridge/nbvalidate/pkg/validator/model"
	"github.com/neuronbridge/nbvalidate/pkg/validator/tally"
)

// Stable finding codes. Reports and tests key on these strings.
const (
	CodeMissingCDM                   = "Missing CDM"
	CodeMissingCDMThumbnail          = "Missing CDMThumbnail"
	CodeMissingVisuallyLosslessStack = "Missing VisuallyLosslessStack"
	CodeMissingMountingProtocol      = "Missing mountingProtocol"
	CodeMissingAlignedBodySWC        = "Missing AlignedBodySWC"
	CodeMissingCDMInput              = "Missing CDMInput"
	CodeMissingCDMMatch              = "Missing CDMMatch"
	CodeMissingCDMSkel               = "Missing CDMSkel"
	CodeMissingSignalMip             = "Missing SignalMip"
	CodeMissingSignalMipMasked       = "Missing SignalMipMasked"
	CodeMissingSignalMipMaskedSkel   = "Missing SignalMipMaskedSkel"
	CodeNoImages                     = "No images"
	CodeNoMatches                    = "No matches"
	CodeNameNotIndexed               = "Published name not indexed"
	CodeMatchNameNotIndexed          = "Match published name not indexed"
	CodeImageValidationFailed        = "Validation failed for image"
	CodeMatchValidationFailed        = "Validation failed for match"
)

// pppRequiredFiles lists the per-result files a PPP match must carry, in
// report order.
var pppRequiredFiles = []struct {
	kind model.FileKind
	code string
}{
	{model.CDMSkel, CodeMissingCDMSkel},
	{model.SignalMip, CodeMissingSignalMip},
	{model.SignalMipMasked, CodeMissingSignalMipMasked},
	{model.SignalMipMaskedSkel, CodeMissingSignalMipMaskedSkel},
}

// Finding is one validation outcome tied to a record and its source file.
type Finding struct {
	Severity  tally.Severity
	Code      string
	SubjectID string
	FilePath  string
	Trace     string
}

// Options toggles the rules whose behaviour differs between metadata releases.
type Options struct {
	// FlagEmptyMatches reports a match file with an empty results list as an
	// error ("No matches").
	FlagEmptyMatches bool `msgpack:"flagEmptyMatches"`
}

// ValidateImage applies the image rules to img. The common rules run first,
// then the kind-specific ones.
func ValidateImage(img model.Image, path string) []Finding {
	if img == nil {
		return nil
	}
	base := img.Base()
	var out []Finding
	emit := func(sev tally.Severity, code string) {
		out = append(out, Finding{Severity: sev, Code: code, SubjectID: base.ID, FilePath: path})
	}

	if !base.Files.Has(model.CDM) {
		emit(tally.SeverityError, CodeMissingCDM)
	}
	if !base.Files.Has(model.CDMThumbnail) {
		emit(tally.SeverityError, CodeMissingCDMThumbnail)
	}

	switch v := img.(type) {
	case *model.LMImage:
		if !v.Files.Has(model.VisuallyLosslessStack) {
			emit(tally.SeverityWarning, CodeMissingVisuallyLosslessStack)
		}
		if v.MountingProtocol == "" {
			emit(tally.SeverityWarning, CodeMissingMountingProtocol)
		}
	case *model.EMImage:
		if !v.Files.Has(model.AlignedBodySWC) {
			emit(tally.SeverityWarning, CodeMissingAlignedBodySWC)
		}
	default:
		panic("rules: unhandled image type")
	}
	return out
}

// ValidateLookup applies the image rules to every result of an image lookup
// file. An empty lookup is itself an error, reported against the file.
func ValidateLookup(lookup *model.ImageLookup, path string) []Finding {
	if lookup == nil || len(lookup.Results) == 0 {
		return []Finding{{Severity: tally.SeverityError, Code: CodeNoImages, SubjectID: path, FilePath: path}}
	}
	var out []Finding
	for _, img := range lookup.Results {
		out = append(out, ValidateImage(img, path)...)
	}
	return out
}

// ValidateMatches applies the match rules to m. A nil index disables the
// referential checks.
func ValidateMatches(m *model.Matches, path string, index model.NameIndex, opts Options) []Finding {
	if m == nil {
		return nil
	}
	out := ValidateImage(m.InputImage, path)
	if m.InputImage != nil && index != nil {
		input := m.InputImage.Base()
		if !index.Contains(input.PublishedName) {
			out = append(out, Finding{Severity: tally.SeverityError, Code: CodeNameNotIndexed, SubjectID: input.ID, FilePath: path})
		}
	}
	if len(m.Results) == 0 && opts.FlagEmptyMatches {
		subject := path
		if m.InputImage != nil {
			subject = m.InputImage.Base().ID
		}
		out = append(out, Finding{Severity: tally.SeverityError, Code: CodeNoMatches, SubjectID: subject, FilePath: path})
	}
	for _, result := range m.Results {
		out = append(out, validateResult(result, path, index)...)
	}
	return out
}

func validateResult(result model.MatchResult, path string, index model.NameIndex) []Finding {
	img := result.MatchedImage()
	files := result.MatchFiles()
	out := ValidateImage(img, path)

	subject := ""
	if img != nil {
		subject = img.Base().ID
	}
	emit := func(code string) {
		out = append(out, Finding{Severity: tally.SeverityError, Code: code, SubjectID: subject, FilePath: path})
	}

	switch result.(type) {
	case *model.CDSMatch:
		if !files.Has(model.CDMInput) {
			emit(CodeMissingCDMInput)
		}
		if !files.Has(model.CDMMatch) {
			emit(CodeMissingCDMMatch)
		}
	case *model.PPPMatch:
		for _, req := range pppRequiredFiles {
			if !files.Has(req.kind) {
				emit(req.code)
			}
		}
	default:
		panic("rules: unhandled match result type")
	}

	if img != nil && index != nil && !index.Contains(img.Base().PublishedName) {
		emit(CodeMatchNameNotIndexed)
	}
	return out
}

// Record adds each finding to c.
func Record(c *tally.Counter, findings []Finding) {
	for _, f := range findings {
		c.Record(f.Code, f.Severity)
	}
}
