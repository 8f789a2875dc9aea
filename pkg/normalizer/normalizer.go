package normalizer

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"unicode"

	"github.com/RitoIssei/bot-mng-ns/internal/config"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const DefaultTeam = "DEFAULT"

const batchAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const batchRandomLength = 8

// Normalizer canonicalizes contract codes. It holds no mutable state and is safe for concurrent use.
type Normalizer struct {
	ignored         map[string]struct{}
	families        []string
	canonicalLength int
	protected       []string
}

func New(cfg config.Contract) *Normalizer {
	ignored := make(map[string]struct{}, len(cfg.Ignored))
	for _, code := range cfg.Ignored {
		code = clean(code)
		if code != "" {
			ignored[code] = struct{}{}
		}
	}
	families := make([]string, 0, len(cfg.Families))
	for _, f := range cfg.Families {
		if f = clean(f); f != "" {
			families = append(families, f)
		}
	}
	protected := make([]string, 0, len(cfg.Protected))
	for _, p := range cfg.Protected {
		if p = clean(p); p != "" {
			protected = append(protected, p)
		}
	}
	return &Normalizer{
		ignored:         ignored,
		families:        families,
		canonicalLength: cfg.CanonicalLength,
		protected:       protected,
	}
}

func (n *Normalizer) IsIgnored(code string) bool {
	_, ok := n.ignored[clean(code)]
	return ok
}

// NormalizeContractCode is the allocation-path conversion: ignored codes pass through,
// family codes lose their trailing digits, everything else is cut to the canonical length.
func (n *Normalizer) NormalizeContractCode(code string) string {
	code = clean(code)
	if code == "" {
		return code
	}
	if _, ok := n.ignored[code]; ok {
		return code
	}
	if n.hasFamilyPrefix(code) {
		return trimTrailingDigits(code)
	}
	if n.canonicalLength > 0 && len(code) > n.canonicalLength {
		return code[:n.canonicalLength]
	}
	return code
}

// RefundContractCode is the refund-path conversion. Codes ending in a protected suffix are kept
// whole; other family codes lose their trailing digits.
func (n *Normalizer) RefundContractCode(code string) string {
	code = clean(code)
	for _, suffix := range n.protected {
		if strings.HasSuffix(code, suffix) {
			return code
		}
	}
	if n.hasFamilyPrefix(code) {
		return trimTrailingDigits(code)
	}
	return code
}

func (n *Normalizer) hasFamilyPrefix(code string) bool {
	for _, f := range n.families {
		if strings.HasPrefix(code, f) {
			return true
		}
	}
	return false
}

func clean(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func trimTrailingDigits(code string) string {
	return strings.TrimRightFunc(code, func(r rune) bool { return r >= '0' && r <= '9' })
}

// HasTrailingDigit reports whether the last character of code is an ASCII digit.
func HasTrailingDigit(code string) bool {
	return code != "" && code[len(code)-1] >= '0' && code[len(code)-1] <= '9'
}

// NormalizeMoney keeps only digits. The value is negative when a minus sign comes before
// the first digit, wherever it sits among other characters. Anything that still does not
// parse yields 0.
func NormalizeMoney(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] >= '0' && s[i] <= '9':
			b.WriteByte(s[i])
		case s[i] == '-' && b.Len() == 0:
			b.WriteByte('-')
		}
	}
	cleaned := b.String()
	value, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		log.Warnf("could not parse money %q (cleaned %q)", s, cleaned)
		return 0
	}
	return value
}

// SplitCodes turns free text such as "fd3n1, FX2 ,," into upper-cased codes.
func SplitCodes(text string) []string {
	text = norm.NFKC.String(text)
	var b strings.Builder
	for _, r := range text {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == ',') {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	parts := strings.Split(b.String(), ",")
	codes := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			codes = append(codes, p)
		}
	}
	return codes
}

var stripDiacritics = transform.Chain(
	norm.NFD,
	runes.Map(func(r rune) rune {
		switch r {
		case 'đ':
			return 'd'
		case 'Đ':
			return 'D'
		}
		return r
	}),
	runes.Remove(runes.In(unicode.Mn)),
	runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
)

// Team folds a team name to upper-case ASCII. Empty names map to DefaultTeam.
func Team(text string) string {
	folded, _, err := transform.String(stripDiacritics, text)
	if err != nil {
		log.Warnf("could not fold team name %q: %v", text, err)
		folded = text
	}
	folded = strings.ToUpper(strings.TrimSpace(folded))
	if folded == "" {
		return DefaultTeam
	}
	return folded
}

// BatchCode returns "<TEAM>-XXXXXXXX" where the random part always contains at least one digit.
func BatchCode(team string) (string, error) {
	alphabetSize := big.NewInt(int64(len(batchAlphabet)))
	suffix := make([]byte, batchRandomLength)
	for {
		hasDigit := false
		for i := range suffix {
			idx, err := rand.Int(rand.Reader, alphabetSize)
			if err != nil {
				return "", err
			}
			suffix[i] = batchAlphabet[idx.Int64()]
			if suffix[i] >= '0' && suffix[i] <= '9' {
				hasDigit = true
			}
		}
		if hasDigit {
			break
		}
	}
	return Team(team) + "-" + string(suffix), nil
}
