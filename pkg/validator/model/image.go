package model

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// ImageKind discriminates the two imaging modalities.
type ImageKind string

const (
	KindEM ImageKind = "EM"
	KindLM ImageKind = "LM"
)

// Image is the closed sum of EMImage and LMImage. Code that needs per-kind
// behaviour should type-switch over the two concrete types.
type Image interface {
	Kind() ImageKind
	Base() *NeuronImage
	isImage()
}

// NeuronImage carries the fields shared by every image record.
type NeuronImage struct {
	ID             string `json:"id"`
	LibraryName    string `json:"libraryName"`
	PublishedName  string `json:"publishedName"`
	AlignmentSpace string `json:"alignmentSpace"`
	Gender         string `json:"gender"`
	Files          Files  `json:"files"`
}

// EMImage is a color depth image of a neuron body reconstructed from EM.
type EMImage struct {
	NeuronImage
	NeuronType     string `json:"neuronType"`
	NeuronInstance string `json:"neuronInstance"`
}

// LMImage is a color depth image of one channel of an LM stack.
type LMImage struct {
	NeuronImage
	SlideCode        string     `json:"slideCode"`
	Objective        string     `json:"objective"`
	AnatomicalArea   string     `json:"anatomicalArea"`
	Channel          FlexString `json:"channel"`
	MountingProtocol string     `json:"mountingProtocol"`
}

func (*EMImage) Kind() ImageKind { return KindEM }
func (*LMImage) Kind() ImageKind { return KindLM }

func (i *EMImage) Base() *NeuronImage { return &i.NeuronImage }
func (i *LMImage) Base() *NeuronImage { return &i.NeuronImage }

func (*EMImage) isImage() {}
func (*LMImage) isImage() {}

// ImageLookup is the content of one image-directory file.
type ImageLookup struct {
	Results []Image
}

// FlexString decodes a JSON string or number into a string. Some releases
// wrote LM channel indexes as integers.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = FlexString(str)
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err != nil {
		return err
	}
	*s = FlexString(data)
	return nil
}
