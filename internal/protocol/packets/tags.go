package packets

import "encoding/binary"

// GetTagLabels requests the labels of the tag slots set in the given bitmap.
type GetTagLabels struct {
	Tags uint64
}

func (p *GetTagLabels) PayloadType() uint16 { return TypeGetTagLabels }
func (p *GetTagLabels) Size() int           { return 8 }

func (p *GetTagLabels) MarshalBinary() ([]byte, error) {
	buf := make([]byte, p.Size())
	binary.LittleEndian.PutUint64(buf[0:], p.Tags)
	return buf, nil
}

func (p *GetTagLabels) UnmarshalBinary(data []byte) error {
	if len(data) < p.Size() {
		return errShort("GetTagLabels", len(data), p.Size())
	}
	p.Tags = binary.LittleEndian.Uint64(data[0:])
	return nil
}

// TagLabels reports the label shared by every tag slot set in Tags.
// An empty response (Tags == 0) is a no-op and must not clear any existing
// label; tag labels are only invalidated by the owning gateway's close.
type TagLabels struct {
	Tags  uint64
	Label [32]byte
}

func (p *TagLabels) PayloadType() uint16 { return TypeTagLabels }
func (p *TagLabels) Size() int           { return 40 }

func (p *TagLabels) MarshalBinary() ([]byte, error) {
	buf := make([]byte, p.Size())
	binary.LittleEndian.PutUint64(buf[0:], p.Tags)
	copy(buf[8:40], p.Label[:])
	return buf, nil
}

func (p *TagLabels) UnmarshalBinary(data []byte) error {
	if len(data) < p.Size() {
		return errShort("TagLabels", len(data), p.Size())
	}
	p.Tags = binary.LittleEndian.Uint64(data[0:])
	copy(p.Label[:], data[8:40])
	return nil
}

// LabelString returns the Label field with its C-style null padding trimmed.
func (p *TagLabels) LabelString() string { return parseLabel(p.Label) }

// SetTags sets a bulb's tag_ids bitmap.
type SetTags struct {
	Tags uint64
}

func (p *SetTags) PayloadType() uint16 { return TypeSetTags }
func (p *SetTags) Size() int           { return 8 }

func (p *SetTags) MarshalBinary() ([]byte, error) {
	buf := make([]byte, p.Size())
	binary.LittleEndian.PutUint64(buf[0:], p.Tags)
	return buf, nil
}

func (p *SetTags) UnmarshalBinary(data []byte) error {
	if len(data) < p.Size() {
		return errShort("SetTags", len(data), p.Size())
	}
	p.Tags = binary.LittleEndian.Uint64(data[0:])
	return nil
}

// SetTagLabels assigns a label to every tag slot set in Tags, allocating the
// slot on a gateway if it did not already exist.
type SetTagLabels struct {
	Tags  uint64
	Label [32]byte
}

func (p *SetTagLabels) PayloadType() uint16 { return TypeSetTagLabels }
func (p *SetTagLabels) Size() int           { return 40 }

func (p *SetTagLabels) MarshalBinary() ([]byte, error) {
	buf := make([]byte, p.Size())
	binary.LittleEndian.PutUint64(buf[0:], p.Tags)
	copy(buf[8:40], p.Label[:])
	return buf, nil
}

func (p *SetTagLabels) UnmarshalBinary(data []byte) error {
	if len(data) < p.Size() {
		return errShort("SetTagLabels", len(data), p.Size())
	}
	p.Tags = binary.LittleEndian.Uint64(data[0:])
	copy(p.Label[:], data[8:40])
	return nil
}

// NewSetTagLabels builds a SetTagLabels payload for the given tag id and label.
func NewSetTagLabels(tagID uint, label string) *SetTagLabels {
	return &SetTagLabels{Tags: 1 << tagID, Label: putLabel(label)}
}

// NewGetTagLabels builds a GetTagLabels payload for the given bitmap.
func NewGetTagLabels(bitmap uint64) *GetTagLabels {
	return &GetTagLabels{Tags: bitmap}
}
