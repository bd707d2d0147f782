package pods

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation"
)

// hashLen is the number of hex characters appended to shortened names.
const hashLen = 8

// SanitizeLabelValue coerces v into a valid label value: at most 63
// characters of [A-Za-z0-9._-], starting and ending alphanumeric.
// Invalid characters become '-'. Values too long to fit keep a prefix and
// end in a hash of the full value, so distinct long values stay distinct.
func SanitizeLabelValue(v string) string {
	if len(validation.IsValidLabelValue(v)) == 0 {
		return v
	}

	b := []byte(v)
	for i, c := range b {
		if !isLabelChar(c) {
			b[i] = '-'
		}
	}
	s := strings.TrimFunc(string(b), func(r rune) bool {
		return !isAlphaNum(byte(r))
	})
	if len(s) <= validation.LabelValueMaxLength {
		return s
	}
	return withHash(s, v, validation.LabelValueMaxLength, func(c byte) bool { return !isAlphaNum(c) })
}

// sanitizeLabels returns a copy of labels with every value sanitized.
// Keys that are not valid qualified names are dropped.
func sanitizeLabels(labels map[string]string) map[string]string {
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		if len(validation.IsQualifiedName(k)) != 0 {
			continue
		}
		out[k] = SanitizeLabelValue(v)
	}
	return out
}

// podName derives a DNS-1123 pod name from the workload type and ID.
// When the conversion loses information (case, '_' or '.', length) the
// name ends in a hash of the original so two workloads never share a name.
func podName(workloadType, workloadID string) string {
	prefix := "workload"
	if workloadType != "" {
		prefix = workloadType
	}
	raw := prefix + "-" + workloadID

	b := []byte(strings.ToLower(raw))
	for i, c := range b {
		if !isAlphaNum(c) && c != '-' {
			b[i] = '-'
		}
	}
	s := strings.Trim(string(b), "-")
	if s == raw && len(s) <= validation.DNS1123LabelMaxLength {
		return s
	}
	return withHash(s, raw, validation.DNS1123LabelMaxLength, func(c byte) bool { return c == '-' })
}

// withHash shortens s to fit limit with a "-<hash of original>" suffix.
// Trailing bytes matching trim are removed from the kept prefix.
func withHash(s, original string, limit int, trim func(byte) bool) string {
	sum := sha256.Sum256([]byte(original))
	suffix := hex.EncodeToString(sum[:])[:hashLen]

	keep := limit - hashLen - 1
	if len(s) > keep {
		s = s[:keep]
	}
	for len(s) > 0 && trim(s[len(s)-1]) {
		s = s[:len(s)-1]
	}
	if s == "" {
		return suffix
	}
	return s + "-" + suffix
}

func isAlphaNum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isLabelChar(c byte) bool {
	return isAlphaNum(c) || c == '-' || c == '_' || c == '.'
}
