// Package intent maps free text to structured intents. Classification is
// pure and deterministic: no I/O, no side effects, and at most one intent
// per message.
package intent

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies a recognized intent.
type Kind string

// Recognized intent kinds.
const (
	Payment              Kind = "payment"
	NameUpdate           Kind = "name_update"
	CreateGroup          Kind = "create_group"
	JoinGroup            Kind = "join_group"
	LeaderConfirmPayment Kind = "leader_confirm_payment"
	LeaderRejectPayment  Kind = "leader_reject_payment"
)

// Intent is the typed interpretation of one message. Only the fields
// relevant to Kind are populated.
type Intent struct {
	Kind       Kind
	Amount     float64
	Name       string
	GroupName  string
	PaymentRef string
}

// maxAmount bounds extracted payment amounts. Anything at or above this is
// assumed to be a misread phone number or date, not a contribution.
const maxAmount = 1_000_000

var (
	// Amount token: digits with optional comma grouping, optional decimal,
	// optional k suffix (x1000). The trailing boundary keeps the token out
	// of longer alphanumeric runs like payment refs.
	amountPattern = regexp.MustCompile(`(?i)(?:^|[^\w.])(\d+(?:,\d{3})*(?:\.\d+)?)(k)?\b`)

	paymentVerbPattern = regexp.MustCompile(`(?i)\b(paid|pay|pays|paying|sent|send|transferred|transfer|deposited|deposit|contributed?|contribution)\b`)

	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bmy name is\s+([a-zA-Z][a-zA-Z ]{1,39})`),
		regexp.MustCompile(`(?i)\bcall me\s+([a-zA-Z][a-zA-Z ]{1,39})`),
		regexp.MustCompile(`(?i)\bi am\s+([a-zA-Z][a-zA-Z ]{1,39})`),
		regexp.MustCompile(`(?i)\bthis is\s+([a-zA-Z][a-zA-Z ]{1,39})`),
	}

	createGroupPattern = regexp.MustCompile(`(?i)\b(?:create|start|open|set\s*up)\s+(?:a\s+|the\s+)?(?:group|community)\s+(?:called|named)\s+(.+)$`)
	joinGroupPattern   = regexp.MustCompile(`(?i)\bjoin\s+(?:the\s+)?(?:group|community)\s+(.+)$`)

	confirmPaymentPattern = regexp.MustCompile(`(?i)^\s*confirm\s+payment\s+(\S+)\s*$`)
	rejectPaymentPattern  = regexp.MustCompile(`(?i)^\s*reject\s+payment\s+(\S+)\s*$`)
)

// nameBlacklist rejects placeholder values that would otherwise be echoed
// back as a display name.
var nameBlacklist = map[string]bool{
	"user":    true,
	"unknown": true,
	"member":  true,
}

// Classify maps text to at most one intent. Rules are tried in a fixed
// priority order and the first accepted match wins; a pattern match whose
// extracted value fails validation counts as no match for that rule.
func Classify(text string) (Intent, bool) {
	if intent, ok := classifyPayment(text); ok {
		return intent, true
	}
	if intent, ok := classifyNameUpdate(text); ok {
		return intent, true
	}
	if m := createGroupPattern.FindStringSubmatch(text); m != nil {
		if name := cleanGroupName(m[1]); name != "" {
			return Intent{Kind: CreateGroup, GroupName: name}, true
		}
	}
	if m := joinGroupPattern.FindStringSubmatch(text); m != nil {
		if name := cleanGroupName(m[1]); name != "" {
			return Intent{Kind: JoinGroup, GroupName: name}, true
		}
	}
	if m := confirmPaymentPattern.FindStringSubmatch(text); m != nil {
		return Intent{Kind: LeaderConfirmPayment, PaymentRef: m[1]}, true
	}
	if m := rejectPaymentPattern.FindStringSubmatch(text); m != nil {
		return Intent{Kind: LeaderRejectPayment, PaymentRef: m[1]}, true
	}
	return Intent{}, false
}

func classifyPayment(text string) (Intent, bool) {
	if !paymentVerbPattern.MatchString(text) {
		return Intent{}, false
	}
	m := amountPattern.FindStringSubmatch(text)
	if m == nil {
		return Intent{}, false
	}

	amount, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return Intent{}, false
	}
	if m[2] != "" {
		amount *= 1000
	}
	if amount <= 0 || amount >= maxAmount {
		return Intent{}, false
	}
	return Intent{Kind: Payment, Amount: amount}, true
}

func classifyNameUpdate(text string) (Intent, bool) {
	for _, pattern := range namePatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if len(name) < 3 || len(name) > 40 {
			continue
		}
		if nameBlacklist[strings.ToLower(name)] {
			continue
		}
		return Intent{Kind: NameUpdate, Name: name}, true
	}
	return Intent{}, false
}

func cleanGroupName(raw string) string {
	name := strings.TrimSpace(raw)
	name = strings.Trim(name, `"'`)
	name = strings.TrimRight(name, ".!?")
	return strings.TrimSpace(name)
}
