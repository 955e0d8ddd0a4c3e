package assistant

import "strings"

// WarningMessage is the assistant reply for questions outside Islamic banking.
const WarningMessage = "⚠️This bot is specifically designed for **Islamic Banking**, Please ask a relevant question only."

// domainKeywords are matched as substrings, so "bay" also accepts "ebay".
var domainKeywords = []string{
	"islamic", "halal", "haram", "shariah", "shari’ah", "riba",
	"interest", "mudarabah", "musharakah", "ijarah", "murabaha",
	"takaful", "profit", "loan", "finance", "bank", "investment",
	"islamic banking", "karz", "sood", "bay", "sukuk",
}

// IsInDomain reports whether the lower-cased query contains any domain keyword.
func IsInDomain(query string) bool {
	q := strings.ToLower(query)
	for _, k := range domainKeywords {
		if strings.Contains(q, k) {
			return true
		}
	}
	return false
}
