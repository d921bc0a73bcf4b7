// Package media converts binary attachments to and from a text-safe encoded
// form so they can live in storage backends that only accept strings.
package media

import (
	"encoding/base64"
	"fmt"
)

// Attachment is a binary blob plus the metadata needed to reconstruct it.
// Name and mime type are carried alongside the encoded data, never embedded
// in it.
type Attachment struct {
	Name string
	Type string
	Data []byte
}

// Encode returns the text-safe representation of the attachment's bytes.
// The round-trip with Decode is lossless.
func Encode(a Attachment) string {
	return base64.StdEncoding.EncodeToString(a.Data)
}

// Decode reconstructs an attachment byte-for-byte from its encoded text and
// the externally supplied filename and mime type.
func Decode(encoded, name, mimeType string) (Attachment, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Attachment{}, fmt.Errorf("decode attachment %s: %w", name, err)
	}
	return Attachment{Name: name, Type: mimeType, Data: data}, nil
}
