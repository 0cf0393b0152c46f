package pool

import (
	"encoding/json"
	"strings"
)

// ImportEntry is one parsed credential import record.
type ImportEntry struct {
	SSOToken    string `json:"sso"`
	SSORWToken  string `json:"sso_rw"`
	UserId      string `json:"x-userid"`
	CFClearance string `json:"cf_clearance"`
	Name        string `json:"name"`
}

type jsonImportEntry struct {
	SSO         string `json:"sso"`
	SSORW       string `json:"sso_rw"`
	SSORWAlias  string `json:"sso-rw"`
	UserId      string `json:"x-userid"`
	CFClearance string `json:"cf_clearance"`
	Name        string `json:"name"`
}

// ParseBulkText accepts the three textual import shapes: a JSON array of bare
// token strings or objects, or newline-delimited text where each line is a
// bare token or a comma-separated token,sso_rw,userid,cf_clearance,name
// record. Lines starting with # are comments. Malformed JSON silently falls
// back to line parsing.
func ParseBulkText(text string) []ImportEntry {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if strings.HasPrefix(text, "[") {
		if entries, ok := parseJSONArray(text); ok {
			return entries
		}
	}
	return parseLines(text)
}

func parseJSONArray(text string) ([]ImportEntry, bool) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, false
	}

	entries := make([]ImportEntry, 0, len(raw))
	for _, item := range raw {
		var token string
		if err := json.Unmarshal(item, &token); err == nil {
			if token = normalizeToken(token); token != "" {
				entries = append(entries, ImportEntry{SSOToken: token})
			}
			continue
		}

		var obj jsonImportEntry
		if err := json.Unmarshal(item, &obj); err != nil {
			continue
		}
		ssoRW := obj.SSORW
		if ssoRW == "" {
			ssoRW = obj.SSORWAlias
		}
		token = normalizeToken(obj.SSO)
		if token == "" {
			continue
		}
		entries = append(entries, ImportEntry{
			SSOToken:    token,
			SSORWToken:  strings.TrimSpace(ssoRW),
			UserId:      strings.TrimSpace(obj.UserId),
			CFClearance: strings.TrimSpace(obj.CFClearance),
			Name:        strings.TrimSpace(obj.Name),
		})
	}
	return entries, true
}

func parseLines(text string) []ImportEntry {
	var entries []ImportEntry
	for line := range strings.Lines(text) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !strings.Contains(line, ",") {
			if token := normalizeToken(line); token != "" {
				entries = append(entries, ImportEntry{SSOToken: token})
			}
			continue
		}

		fields := strings.Split(line, ",")
		entry := ImportEntry{SSOToken: normalizeToken(fields[0])}
		if entry.SSOToken == "" {
			continue
		}
		if len(fields) > 1 {
			entry.SSORWToken = strings.TrimSpace(fields[1])
		}
		if len(fields) > 2 {
			entry.UserId = strings.TrimSpace(fields[2])
		}
		if len(fields) > 3 {
			entry.CFClearance = strings.TrimSpace(fields[3])
		}
		if len(fields) > 4 {
			entry.Name = strings.TrimSpace(fields[4])
		}
		entries = append(entries, entry)
	}
	return entries
}

// normalizeToken trims the token and strips a leading sso= cookie prefix.
func normalizeToken(token string) string {
	token = strings.TrimSpace(token)
	token = strings.TrimPrefix(token, "sso=")
	return token
}
