package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// CreateDummyFile creates a file with the given content at path, creating
// parent directories as needed.
func CreateDummyFile(t *testing.T, path string, content string) {
	t.Helper()
	fullPath := filepath.Clean(path)
	dir := filepath.Dir(fullPath)
	err := os.MkdirAll(dir, 0o755)
	require.NoError(t, err, "Failed to create directory %s for dummy file", dir)
	err = os.WriteFile(fullPath, []byte(content), 0o644)
	require.NoError(t, err, "Failed to write dummy file %s", fullPath)
}

// CreateDummyDir ensures a directory exists at path.
func CreateDummyDir(t *testing.T, path string) {
	t.Helper()
	err := os.MkdirAll(filepath.Clean(path), 0o755)
	require.NoError(t, err, "Failed to create dummy directory %s", path)
}

// Record is a JSON object under construction.
type Record map[string]any

// EMImage returns an EM image carrying every file the image rules require.
func EMImage(id, publishedName string) Record {
	return Record{
		"type":           "EMImage",
		"id":             id,
		"libraryName":    "FlyEM_Hemibrain_v1.2.1",
		"publishedName":  publishedName,
		"alignmentSpace": "JRC2018_Unisex_20x_HR",
		"gender":         "f",
		"neuronType":     "ORN_DA1",
		"files": map[string]any{
			"CDM":            publishedName + "-CDM.png",
			"CDMThumbnail":   publishedName + "-CDM.jpg",
			"AlignedBodySWC": publishedName + ".swc",
		},
	}
}

// LMImage returns an LM image carrying every file and field the image rules
// require.
func LMImage(id, publishedName string) Record {
	return Record{
		"type":             "LMImage",
		"id":               id,
		"libraryName":      "FlyLight_Gen1_MCFO",
		"publishedName":    publishedName,
		"alignmentSpace":   "JRC2018_Unisex_20x_HR",
		"gender":           "f",
		"slideCode":        "20180918_62_A5",
		"objective":        "40x",
		"anatomicalArea":   "Brain",
		"channel":          1,
		"mountingProtocol": "DPX PBS Mounting",
		"files": map[string]any{
			"CDM":                   publishedName + "-CDM.png",
			"CDMThumbnail":          publishedName + "-CDM.jpg",
			"VisuallyLosslessStack": publishedName + "-aligned_stack.h5j",
		},
	}
}

// CDSMatch returns a color depth search match of image with its required files.
func CDSMatch(image Record) Record {
	return Record{
		"type":            "CDSMatch",
		"image":           image,
		"normalizedScore": 12345.0,
		"matchingPixels":  321,
		"files": map[string]any{
			"CDMInput": "input.png",
			"CDMMatch": "match.png",
		},
	}
}

// PPPMatch returns a PPPM match of image with its required files.
func PPPMatch(image Record) Record {
	return Record{
		"type":     "PPPMatch",
		"image":    image,
		"mirrored": true,
		"pppRank":  0.0,
		"pppScore": 144,
		"files": map[string]any{
			"CDMSkel":             "ch_skel.png",
			"SignalMip":           "raw.png",
			"SignalMipMasked":     "masked_raw.png",
			"SignalMipMaskedSkel": "skel.png",
		},
	}
}

// Without removes the given keys from r and from its "files" mapping.
func (r Record) Without(keys ...string) Record {
	files, _ := r["files"].(map[string]any)
	for _, k := range keys {
		delete(r, k)
		delete(files, k)
	}
	return r
}

// LookupJSON renders an image lookup document.
func LookupJSON(t *testing.T, images ...Record) string {
	t.Helper()
	if images == nil {
		images = []Record{}
	}
	return mustJSON(t, map[string]any{"results": images})
}

// MatchesJSON renders a match document.
func MatchesJSON(t *testing.T, input Record, results ...Record) string {
	t.Helper()
	if results == nil {
		results = []Record{}
	}
	return mustJSON(t, map[string]any{"inputImage": input, "results": results})
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err, "Failed to render fixture")
	return string(data)
}
