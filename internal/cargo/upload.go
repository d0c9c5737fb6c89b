package cargo

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/cargohold/internal/apierror"
)

// CrateUploadResult is returned to the publisher on a successful upload.
type CrateUploadResult struct {
	Warnings CrateUploadWarnings `json:"warnings"`
}

// CrateUploadWarnings lists non-fatal problems with an upload. The slices are
// always present in the serialized form, even when empty.
type CrateUploadWarnings struct {
	InvalidCategories []string `json:"invalid_categories"`
	InvalidBadges     []string `json:"invalid_badges"`
	Other             []string `json:"other"`
}

func NewCrateUploadResult() *CrateUploadResult {
	return &CrateUploadResult{
		Warnings: CrateUploadWarnings{
			InvalidCategories: []string{},
			InvalidBadges:     []string{},
			Other:             []string{},
		},
	}
}

// CrateUploadData is the decoded form of a publish payload. It exists only
// for the duration of the publish operation.
type CrateUploadData struct {
	Metadata CrateMetadata
	Content  []byte
}

// ParseCrateUploadData decodes the binary envelope cargo sends on publish:
//
//	u32_le metadata_len | metadata JSON | u32_le content_len | content
//
// The content must fill the rest of the payload exactly. Any truncation or
// length mismatch is an InvalidRequest.
func ParseCrateUploadData(buffer []byte) (*CrateUploadData, error) {
	if len(buffer) < 4 {
		return nil, decodeError("payload is truncated")
	}
	metadataLen := binary.LittleEndian.Uint32(buffer[:4])
	rest := buffer[4:]
	if uint64(metadataLen) > uint64(len(rest)) {
		return nil, decodeError("declared metadata length exceeds the payload")
	}
	metadataBuf := rest[:metadataLen]
	rest = rest[metadataLen:]

	if len(rest) < 4 {
		return nil, decodeError("payload is truncated")
	}
	contentLen := binary.LittleEndian.Uint32(rest[:4])
	rest = rest[4:]
	if uint64(contentLen) != uint64(len(rest)) {
		return nil, decodeError("declared content length does not match the payload")
	}

	var metadata CrateMetadata
	if err := json.Unmarshal(metadataBuf, &metadata); err != nil {
		return nil, apierror.Specialize(apierror.InvalidRequest(), "failed to parse crate metadata").WithCause(err)
	}

	content := make([]byte, len(rest))
	copy(content, rest)
	return &CrateUploadData{Metadata: metadata, Content: content}, nil
}

// Encode serializes the upload back into the binary envelope. Decoding the
// result yields metadata and content equal to the originals.
func (d *CrateUploadData) Encode() ([]byte, error) {
	metadataBuf, err := json.Marshal(&d.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize metadata: %w", err)
	}
	buf := make([]byte, 0, 8+len(metadataBuf)+len(d.Content))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(metadataBuf)))
	buf = append(buf, metadataBuf...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(d.Content)))
	buf = append(buf, d.Content...)
	return buf, nil
}

// BuildIndexData derives the durable index record for this upload. The
// record is written with schema version 2: the full feature map goes into
// features2 and the legacy features field stays empty.
func (d *CrateUploadData) BuildIndexData() *IndexCrateMetadata {
	cksum := sha256.Sum256(d.Content)
	deps := make([]IndexCrateDependency, 0, len(d.Metadata.Deps))
	for i := range d.Metadata.Deps {
		deps = append(deps, d.Metadata.Deps[i].IndexDependency())
	}
	v := uint32(2)
	return &IndexCrateMetadata{
		Name:        d.Metadata.Name,
		Vers:        d.Metadata.Vers,
		Deps:        deps,
		Cksum:       hex.EncodeToString(cksum[:]),
		Features:    map[string][]string{},
		Yanked:      false,
		Links:       d.Metadata.Links,
		V:           &v,
		Features2:   cloneFeatures(d.Metadata.Features),
		RustVersion: d.Metadata.RustVersion,
	}
}

func decodeError(details string) error {
	return apierror.Specialize(apierror.InvalidRequest(), details)
}

func cloneFeatures(features map[string][]string) map[string][]string {
	if features == nil {
		return map[string][]string{}
	}
	out := make(map[string][]string, len(features))
	for name, list := range features {
		out[name] = slices.Clone(list)
	}
	return out
}
