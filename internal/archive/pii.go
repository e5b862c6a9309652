package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?1?[-.\s]?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}`)
)

// HashPhone returns the hex-encoded SHA-256 of a phone number, the stable
// lead identifier archived records carry instead of the number itself.
func HashPhone(phone string) string {
	sum := sha256.Sum256([]byte(phone))
	return hex.EncodeToString(sum[:])
}

// ScrubPII replaces emails with [EMAIL] and phone numbers with [PHONE].
// Names stay, the training pipeline needs them for personalization context.
func ScrubPII(text string) string {
	text = emailRe.ReplaceAllString(text, "[EMAIL]")
	text = phoneRe.ReplaceAllString(text, "[PHONE]")
	return text
}

// ScrubMessages scrubs every message in place. The lead record's own contact
// values are redacted literally as well, catching shapes the patterns miss
// (international numbers, extensions). Literal redaction runs first so a
// partial pattern match cannot break up a known value.
func ScrubMessages(msgs []Message, knownContacts ...string) {
	for i := range msgs {
		content := msgs[i].Content
		for _, v := range knownContacts {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			token := "[PHONE]"
			if strings.Contains(v, "@") {
				token = "[EMAIL]"
			}
			content = strings.ReplaceAll(content, v, token)
		}
		msgs[i].Content = ScrubPII(content)
	}
}
