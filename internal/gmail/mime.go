package gmail

import (
	"encoding/base64"
	"strings"

	gmailv1 "google.golang.org/api/gmail/v1"

	"gigmail/internal/model"
)

// flattenParts walks a MIME part tree depth-first and returns its leaf parts
// in document order with their bodies decoded. A single-part message yields
// the payload itself.
func flattenParts(part *gmailv1.MessagePart) []model.BodyPart {
	if part == nil {
		return nil
	}
	if len(part.Parts) == 0 {
		var data []byte
		if part.Body != nil && part.Body.Data != "" {
			data = decodeBase64URL(part.Body.Data)
		}
		return []model.BodyPart{{MimeType: strings.ToLower(part.MimeType), Data: data}}
	}
	var out []model.BodyPart
	for _, sub := range part.Parts {
		out = append(out, flattenParts(sub)...)
	}
	return out
}

func decodeBase64URL(data string) []byte {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		// Gmail uses unpadded base64url
		b, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return nil
		}
	}
	return b
}
