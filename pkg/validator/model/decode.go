package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// maxRawLen bounds the raw value quoted in a DecodeError.
const maxRawLen = 120

var (
	// ErrDecode is matched by every error returned from the Decode functions.
	ErrDecode = errors.New("record decode failed")

	errMissing     = errors.New("required field missing")
	errUnknownKind = errors.New("cannot determine record kind")
)

// DecodeError describes a document that could not be turned into a typed
// record. Field is a JSON path such as "results[3].publishedName" and Raw is
// the (possibly clipped) offending value.
type DecodeError struct {
	Field string
	Raw   string
	Err   error
}

func (e *DecodeError) Error() string {
	var b strings.Builder
	b.WriteString("decode failed")
	if e.Field != "" {
		fmt.Fprintf(&b, " at %q", e.Field)
	}
	if e.Raw != "" {
		fmt.Fprintf(&b, " (raw value %s)", e.Raw)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both ErrDecode and the underlying cause to errors.Is/As.
func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDecode}
	}
	return []error{ErrDecode, e.Err}
}

// DecodeImageLookup decodes an image-directory document {results: [...]}.
func DecodeImageLookup(data []byte) (*ImageLookup, error) {
	data, err := toUTF8(data)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	var doc struct {
		Results *[]json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, documentError(data, "", err)
	}
	if doc.Results == nil {
		return nil, &DecodeError{Field: "results", Err: errMissing}
	}
	lookup := &ImageLookup{Results: make([]Image, 0, len(*doc.Results))}
	for i, raw := range *doc.Results {
		img, err := decodeImage(raw, fmt.Sprintf("results[%d]", i))
		if err != nil {
			return nil, err
		}
		lookup.Results = append(lookup.Results, img)
	}
	return lookup, nil
}

// DecodeMatches decodes a match-directory document {inputImage, results}.
func DecodeMatches(data []byte) (*Matches, error) {
	data, err := toUTF8(data)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	var doc struct {
		InputImage json.RawMessage     `json:"inputImage"`
		Results    *[]json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, documentError(data, "", err)
	}
	input, err := decodeImage(doc.InputImage, "inputImage")
	if err != nil {
		return nil, err
	}
	if doc.Results == nil {
		return nil, &DecodeError{Field: "results", Err: errMissing}
	}
	matches := &Matches{InputImage: input, Results: make([]MatchResult, 0, len(*doc.Results))}
	for i, raw := range *doc.Results {
		res, err := decodeMatchResult(raw, fmt.Sprintf("results[%d]", i))
		if err != nil {
			return nil, err
		}
		matches.Results = append(matches.Results, res)
	}
	return matches, nil
}

func decodeImage(raw json.RawMessage, field string) (Image, error) {
	if isNull(raw) {
		return nil, &DecodeError{Field: field, Err: errMissing}
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, &DecodeError{Field: field, Raw: clip(raw), Err: err}
	}
	kind, err := imageKind(probe)
	if err != nil {
		return nil, &DecodeError{Field: field + ".type", Raw: clip(probe["type"]), Err: err}
	}

	var img Image
	switch kind {
	case KindEM:
		em := &EMImage{}
		err = json.Unmarshal(raw, em)
		img = em
	case KindLM:
		lm := &LMImage{}
		err = json.Unmarshal(raw, lm)
		img = lm
	}
	if err != nil {
		return nil, documentError(raw, field, err)
	}

	base := img.Base()
	if base.ID == "" {
		return nil, &DecodeError{Field: field + ".id", Raw: clip(probe["id"]), Err: errMissing}
	}
	if base.PublishedName == "" {
		return nil, &DecodeError{Field: field + ".publishedName", Raw: clip(probe["publishedName"]), Err: errMissing}
	}
	return img, nil
}

func imageKind(probe map[string]json.RawMessage) (ImageKind, error) {
	if t, ok := stringField(probe, "type"); ok {
		switch t {
		case "EMImage", "EM":
			return KindEM, nil
		case "LMImage", "LM":
			return KindLM, nil
		default:
			return "", fmt.Errorf("%w: unknown image type %q", errUnknownKind, t)
		}
	}
	switch {
	case hasAny(probe, "neuronType", "neuronInstance"):
		return KindEM, nil
	case hasAny(probe, "slideCode", "objective", "mountingProtocol", "anatomicalArea", "channel"):
		return KindLM, nil
	}
	if lib, ok := stringField(probe, "libraryName"); ok {
		switch {
		case strings.HasPrefix(lib, "FlyEM"):
			return KindEM, nil
		case strings.HasPrefix(lib, "FlyLight"):
			return KindLM, nil
		}
	}
	return "", errUnknownKind
}

func decodeMatchResult(raw json.RawMessage, field string) (MatchResult, error) {
	if isNull(raw) {
		return nil, &DecodeError{Field: field, Err: errMissing}
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, &DecodeError{Field: field, Raw: clip(raw), Err: err}
	}
	kind, err := matchKind(probe)
	if err != nil {
		return nil, &DecodeError{Field: field + ".type", Raw: clip(probe["type"]), Err: err}
	}

	var doc struct {
		Image           json.RawMessage `json:"image"`
		Files           Files           `json:"files"`
		Mirrored        bool            `json:"mirrored"`
		NormalizedScore float64         `json:"normalizedScore"`
		MatchingPixels  int             `json:"matchingPixels"`
		PPPRank         *float64        `json:"pppRank"`
		PPPScore        *int            `json:"pppScore"`
		PPPMRank        *float64        `json:"pppmRank"`
		PPPMScore       *int            `json:"pppmScore"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, documentError(raw, field, err)
	}
	img, err := decodeImage(doc.Image, field+".image")
	if err != nil {
		return nil, err
	}
	base := MatchBase{Image: img, Files: doc.Files, Mirrored: doc.Mirrored}
	if base.Files == nil {
		base.Files = Files{}
	}

	switch kind {
	case KindCDS:
		return &CDSMatch{MatchBase: base, NormalizedScore: doc.NormalizedScore, MatchingPixels: doc.MatchingPixels}, nil
	default:
		m := &PPPMatch{MatchBase: base}
		if r := firstFloat(doc.PPPRank, doc.PPPMRank); r != nil {
			m.PPPRank = *r
		}
		if s := firstInt(doc.PPPScore, doc.PPPMScore); s != nil {
			m.PPPScore = *s
		}
		return m, nil
	}
}

func matchKind(probe map[string]json.RawMessage) (MatchKind, error) {
	if t, ok := stringField(probe, "type"); ok {
		switch t {
		case "CDSMatch", "CDS":
			return KindCDS, nil
		case "PPPMatch", "PPPM", "PPP":
			return KindPPP, nil
		default:
			return "", fmt.Errorf("%w: unknown match type %q", errUnknownKind, t)
		}
	}
	switch {
	case hasAny(probe, "normalizedScore", "matchingPixels"):
		return KindCDS, nil
	case hasAny(probe, "pppRank", "pppScore", "pppmRank", "pppmScore"):
		return KindPPP, nil
	}
	return "", errUnknownKind
}

// toUTF8 strips a UTF-8 BOM and transcodes UTF-16 documents that carry a BOM.
func toUTF8(data []byte) ([]byte, error) {
	out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
	if err != nil {
		return nil, fmt.Errorf("normalize encoding: %w", err)
	}
	return out, nil
}

// documentError converts an encoding/json failure into a DecodeError that
// points at the offending field or byte offset.
func documentError(data []byte, field string, err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		path := typeErr.Field
		if field != "" && path != "" {
			path = field + "." + path
		} else if field != "" {
			path = field
		}
		return &DecodeError{Field: path, Raw: typeErr.Value, Err: err}
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		start := max(0, int(syntaxErr.Offset)-20)
		end := min(len(data), int(syntaxErr.Offset)+20)
		return &DecodeError{Field: field, Raw: clip(data[start:end]), Err: err}
	}
	return &DecodeError{Field: field, Err: err}
}

func stringField(probe map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := probe[key]
	if !ok || isNull(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return "", false
	}
	return s, true
}

func hasAny(probe map[string]json.RawMessage, keys ...string) bool {
	for _, k := range keys {
		if _, ok := probe[k]; ok {
			return true
		}
	}
	return false
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func clip(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > maxRawLen {
		return s[:maxRawLen] + "..."
	}
	return s
}

func firstFloat(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstInt(vals ...*int) *int {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
