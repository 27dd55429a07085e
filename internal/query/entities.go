package query

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/miradorstack/secops-investigator/internal/models"
)

type entityPattern struct {
	entityType models.EntityType
	pattern    *regexp.Regexp
}

var entityPatterns = []entityPattern{
	{models.EntityIPAddress, regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
	{models.EntityHostname, regexp.MustCompile(`(?i)\b([a-z0-9][a-z0-9-]*(?:\.[a-z0-9-]+)*\.(?:com|net|org|local|internal|corp|lan|io))\b`)},
	{models.EntityProtocol, regexp.MustCompile(`(?i)\b(?:protocol\s+([a-z0-9-]+)|tcp|udp|icmp|https?|ssh|ftp|dns|dhcp|smtp|snmp|bgp|ospf|ipsec|ssl|tls|rdp|ldap|radius|ntp)\b`)},
	{models.EntityPort, regexp.MustCompile(`(?i)\bport\s*[:#]?\s*(\d+)\b`)},
	{models.EntityUserID, regexp.MustCompile(`(?i)\buser(?:name|_id|\s+id)?(?:\s*[:=]\s*|\s+)([a-z][\w.-]*(?:@[\w.-]+)?)`)},
	{models.EntityDeviceID, regexp.MustCompile(`(?i)\b(?:device[\s_-]?id\s*[:=]?\s*([\w-]+)|(?:[0-9a-f]{2}[:-]){5}[0-9a-f]{2})\b`)},
	{models.EntityErrorCode, regexp.MustCompile(`(?i)\b(?:error|err|code|status)\s*[:#]?\s*([a-z0-9_-]*\d[a-z0-9_-]*)\b`)},
	{models.EntityServiceName, regexp.MustCompile(`(?i)\b(?:service\s+([a-z][\w-]*)|([a-z][\w-]*)\s+service)\b`)},
}

var timePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:last|past)\s+\d+\s+(?:minute|hour|day|week|month)s?\b`),
	regexp.MustCompile(`(?i)\b(?:yesterday|today|now)\b`),
	regexp.MustCompile(`\b(?:\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4})\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}(?::\d{2})?(?:\s*[ap]m)?\b`),
}

const timeEntityConfidence = 0.9

// contextRadius is how many characters either side of a match are kept as entity context.
const contextRadius = 20

var knownProtocols = map[string]struct{}{
	"tcp": {}, "udp": {}, "icmp": {}, "http": {}, "https": {}, "ssh": {}, "ftp": {},
	"dns": {}, "dhcp": {}, "smtp": {}, "snmp": {}, "bgp": {}, "ospf": {}, "ipsec": {},
	"ssl": {}, "tls": {}, "rdp": {}, "ldap": {}, "radius": {}, "ntp": {},
}

type entityKey struct {
	entityType models.EntityType
	value      string
}

// ExtractEntities scans text with every entity pattern, then the time expressions, and
// deduplicates by (type, value) keeping the first occurrence.
func ExtractEntities(text string) []models.ExtractedEntity {
	seen := make(map[entityKey]struct{})
	entities := make([]models.ExtractedEntity, 0)

	add := func(entity models.ExtractedEntity) {
		if entity.Value == "" {
			return
		}
		key := entityKey{entity.Type, entity.Value}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		entities = append(entities, entity)
	}

	for _, ep := range entityPatterns {
		for _, loc := range ep.pattern.FindAllStringSubmatchIndex(text, -1) {
			value := strings.TrimSpace(matchValue(text, loc))
			add(models.ExtractedEntity{
				Type:       ep.entityType,
				Value:      value,
				Confidence: entityConfidence(ep.entityType, value),
				Context:    surrounding(text, loc[0], loc[1]),
			})
		}
	}

	for _, pattern := range timePatterns {
		for _, loc := range pattern.FindAllStringIndex(text, -1) {
			add(models.ExtractedEntity{
				Type:       models.EntityTimestamp,
				Value:      strings.TrimSpace(text[loc[0]:loc[1]]),
				Confidence: timeEntityConfidence,
				Context:    surrounding(text, loc[0], loc[1]),
			})
		}
	}

	return entities
}

// matchValue returns the first non-empty capture group, falling back to the whole match.
func matchValue(text string, loc []int) string {
	for i := 2; i+1 < len(loc); i += 2 {
		if loc[i] >= 0 && loc[i+1] > loc[i] {
			return text[loc[i]:loc[i+1]]
		}
	}
	return text[loc[0]:loc[1]]
}

func surrounding(text string, start, end int) string {
	from := start - contextRadius
	if from < 0 {
		from = 0
	}
	for from > 0 && !utf8.RuneStart(text[from]) {
		from--
	}
	to := end + contextRadius
	if to > len(text) {
		to = len(text)
	}
	for to < len(text) && !utf8.RuneStart(text[to]) {
		to++
	}
	return strings.TrimSpace(text[from:to])
}

func entityConfidence(t models.EntityType, value string) float64 {
	switch t {
	case models.EntityIPAddress:
		if validIPv4(value) {
			return 0.95
		}
		return 0.7
	case models.EntityProtocol:
		if _, ok := knownProtocols[strings.ToLower(value)]; ok {
			return 0.9
		}
		return 0.6
	case models.EntityPort:
		if port, err := strconv.Atoi(value); err == nil && port >= 1 && port <= 65535 {
			return 0.9
		}
		return 0.5
	default:
		return 0.8
	}
}

func validIPv4(value string) bool {
	octets := strings.Split(value, ".")
	if len(octets) != 4 {
		return false
	}
	for _, octet := range octets {
		n, err := strconv.Atoi(octet)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}
	return true
}
