// Package ingest turns raw webhook deliveries from heterogeneous lead sources
// into canonical lead records.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// ErrInsufficientLeadData is returned when a payload yields neither a phone
// number nor an email address, so no lead can be contacted.
var ErrInsufficientLeadData = errors.New("ingest: payload has no usable phone or email")

// ErrUnparsableBody is returned when the body cannot be interpreted under the
// declared content type or any fallback.
var ErrUnparsableBody = errors.New("ingest: request body could not be parsed")

// Overrides are explicit per-request field mappings supplied by the
// integrator. They take priority over the alias heuristics.
type Overrides struct {
	Phone string
	Name  string
	Email string
}

// NormalizedLead is the canonical shape every source payload maps into.
type NormalizedLead struct {
	Name    string
	Email   string
	Phone   string
	Message string
	Fields  map[string]string
}

// Alias lists are checked in order; the first populated field wins.
var (
	phoneAliases   = []string{"phone", "phone_number", "phonenumber", "tel", "telephone", "mobile", "cell", "contact_phone", "contactphone"}
	emailAliases   = []string{"email", "e-mail", "email_address", "emailaddress", "contact_email"}
	nameAliases    = []string{"name", "full_name", "fullname", "contact_name", "lead_name"}
	messageAliases = []string{"message", "msg", "notes", "note", "comments", "comment", "description", "inquiry", "question", "details"}
	eventIDAliases = []string{"event_id", "eventid", "lead_id", "leadgen_id", "submission_id", "external_id"}
)

// Normalize parses a raw body under its declared content type and maps it to
// the canonical lead shape. It is deterministic: identical bodies and
// overrides always produce identical output, which the dedup content hash
// relies on.
func Normalize(body []byte, contentType string, ov Overrides, defaultRegion string) (NormalizedLead, error) {
	fields, err := parseBody(body, contentType)
	if err != nil {
		return NormalizedLead{}, err
	}

	lead := NormalizedLead{Fields: fields}

	lead.Phone = pick(fields, ov.Phone, phoneAliases)
	lead.Email = pick(fields, ov.Email, emailAliases)
	lead.Name = pick(fields, ov.Name, nameAliases)
	lead.Message = pick(fields, "", messageAliases)

	if lead.Name == "" {
		first := fields["first_name"]
		if first == "" {
			first = fields["firstname"]
		}
		last := fields["last_name"]
		if last == "" {
			last = fields["lastname"]
		}
		lead.Name = strings.TrimSpace(first + " " + last)
	}

	if lead.Phone != "" {
		lead.Phone = NormalizePhone(lead.Phone, defaultRegion)
	}
	lead.Email = strings.ToLower(strings.TrimSpace(lead.Email))

	if lead.Phone == "" && lead.Email == "" {
		return NormalizedLead{}, ErrInsufficientLeadData
	}
	return lead, nil
}

// NormalizePhone formats a phone number to E.164 using the tenant's default
// region when no country code is present. Unparseable input is returned
// trimmed so the raw value is still stored.
func NormalizePhone(input, defaultRegion string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}
	if defaultRegion == "" {
		defaultRegion = "US"
	}
	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return trimmed
	}
	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}
	return phonenumbers.Format(number, phonenumbers.E164)
}

// IdempotencyKey derives the dedup key for an event: the source-native event
// id when the payload carries one, otherwise a hash of the canonical field
// set so retried deliveries of identical content collapse.
func IdempotencyKey(source string, fields map[string]string) string {
	for _, alias := range eventIDAliases {
		if id := strings.TrimSpace(fields[alias]); id != "" {
			return source + ":" + id
		}
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s\n", k, fields[k])
	}
	return source + ":sha256:" + hex.EncodeToString(h.Sum(nil))[:32]
}

// parseBody interprets the body under the declared media type, falling back
// to best-effort detection when the declaration is wrong.
func parseBody(body []byte, contentType string) (map[string]string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = ""
	}

	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		if fields, err := parseJSON(body); err == nil {
			return fields, nil
		}
	case mediaType == "application/x-www-form-urlencoded":
		if fields, err := parseForm(body); err == nil {
			return fields, nil
		}
	case mediaType == "multipart/form-data":
		if fields, err := parseMultipart(body, params["boundary"]); err == nil {
			return fields, nil
		}
	}

	// Declared type missing or wrong: sniff the shape.
	if fields, err := parseJSON(body); err == nil {
		return fields, nil
	}
	if fields, err := parseForm(body); err == nil && len(fields) > 0 {
		return fields, nil
	}
	return nil, ErrUnparsableBody
}

func parseJSON(body []byte) (map[string]string, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	fields := make(map[string]string, len(raw))
	flattenInto(fields, "", raw)
	promoteBareNames(fields)
	return fields, nil
}

// promoteBareNames exposes nested fields under their bare name when the top
// level does not already define it, so `{"lead": {"phone": ...}}` matches the
// phone aliases. Dotted keys are visited in sorted order to keep the result
// deterministic.
func promoteBareNames(fields map[string]string) {
	dotted := make([]string, 0, len(fields))
	for k := range fields {
		if strings.Contains(k, ".") {
			dotted = append(dotted, k)
		}
	}
	sort.Strings(dotted)
	for _, k := range dotted {
		bare := k[strings.LastIndex(k, ".")+1:]
		if _, exists := fields[bare]; !exists {
			fields[bare] = fields[k]
		}
	}
}

// flattenInto lowers nested objects one namespace deep (`lead.phone`) and
// stringifies scalars. Arrays and deeper nesting are dropped.
func flattenInto(dst map[string]string, prefix string, src map[string]any) {
	for k, v := range src {
		key := strings.ToLower(strings.TrimSpace(k))
		if prefix != "" {
			key = prefix + "." + key
		}
		switch val := v.(type) {
		case string:
			dst[key] = strings.TrimSpace(val)
		case float64:
			dst[key] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			dst[key] = strconv.FormatBool(val)
		case map[string]any:
			if prefix == "" {
				flattenInto(dst, key, val)
			}
		}
	}
}

func parseForm(body []byte) (map[string]string, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, err
	}
	fields := make(map[string]string, len(values))
	for k, vs := range values {
		if len(vs) == 0 {
			continue
		}
		fields[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(vs[0])
	}
	return fields, nil
}

func parseMultipart(body []byte, boundary string) (map[string]string, error) {
	if boundary == "" {
		return nil, errors.New("ingest: multipart body without boundary")
	}
	reader := multipart.NewReader(strings.NewReader(string(body)), boundary)
	form, err := reader.ReadForm(1 << 20)
	if err != nil {
		return nil, err
	}
	defer form.RemoveAll()
	fields := make(map[string]string, len(form.Value))
	for k, vs := range form.Value {
		if len(vs) == 0 {
			continue
		}
		fields[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(vs[0])
	}
	return fields, nil
}

// pick resolves a canonical field: the explicit override key first, then the
// alias list in priority order.
func pick(fields map[string]string, override string, aliases []string) string {
	if override != "" {
		if v := fields[strings.ToLower(strings.TrimSpace(override))]; v != "" {
			return v
		}
		return ""
	}
	for _, alias := range aliases {
		if v := fields[alias]; v != "" {
			return v
		}
	}
	return ""
}
