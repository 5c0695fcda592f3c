// Package model holds the typed representation of NeuronBridge metadata
// documents (image lookups and precomputed matches) and the decoder that
// builds them from raw JSON.
package model

import (
	"encoding/json"
	"sort"
)

// FileKind names one entry of a record's "files" mapping.
type FileKind string

// File kinds referenced by images and match results.
const (
	CDM                   FileKind = "CDM"
	CDMThumbnail          FileKind = "CDMThumbnail"
	CDMInput              FileKind = "CDMInput"
	CDMMatch              FileKind = "CDMMatch"
	CDMBest               FileKind = "CDMBest"
	CDMBestThumbnail      FileKind = "CDMBestThumbnail"
	CDMSkel               FileKind = "CDMSkel"
	SignalMip             FileKind = "SignalMip"
	SignalMipMasked       FileKind = "SignalMipMasked"
	SignalMipMaskedSkel   FileKind = "SignalMipMaskedSkel"
	SignalMipExpression   FileKind = "SignalMipExpression"
	VisuallyLosslessStack FileKind = "VisuallyLosslessStack"
	AlignedBodySWC        FileKind = "AlignedBodySWC"
	AlignedBodyOBJ        FileKind = "AlignedBodyOBJ"
	CDSResults            FileKind = "CDSResults"
	PPPMResults           FileKind = "PPPMResults"
)

// legacyFileKinds maps key names written by older metadata releases onto the
// current kinds.
var legacyFileKinds = map[string]FileKind{
	"ColorDepthMip":          CDM,
	"ColorDepthMipThumbnail": CDMThumbnail,
	"ColorDepthMipInput":     CDMInput,
	"ColorDepthMipMatch":     CDMMatch,
	"ColorDepthMipMatched":   CDMMatch,
	"ColorDepthMipBest":      CDMBest,
	"ColorDepthMipSkel":      CDMSkel,
}

// Files maps a file kind to a relative path or URL. A kind that is missing,
// null or empty in the source document is simply absent from the map.
type Files map[FileKind]string

// Has reports whether a non-empty reference is present for kind.
func (f Files) Has(kind FileKind) bool {
	return f[kind] != ""
}

// Kinds returns the present kinds in sorted order.
func (f Files) Kinds() []FileKind {
	kinds := make([]FileKind, 0, len(f))
	for k, v := range f {
		if v != "" {
			kinds = append(kinds, k)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// UnmarshalJSON accepts both current and legacy key names and drops null or
// empty references.
func (f *Files) UnmarshalJSON(data []byte) error {
	var raw map[string]*string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Files, len(raw))
	for key, value := range raw {
		if value == nil || *value == "" {
			continue
		}
		kind := FileKind(key)
		if legacy, ok := legacyFileKinds[key]; ok {
			kind = legacy
			if _, dup := out[kind]; dup {
				continue // current key wins over legacy alias
			}
		}
		out[kind] = *value
	}
	*f = out
	return nil
}
