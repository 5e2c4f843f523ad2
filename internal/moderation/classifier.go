package moderation

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"whiteboardAPI/internal/types/element"
	"whiteboardAPI/internal/types/policy"
)

// Verdict is the outcome of one classification pass. Term is the list entry
// that decided it, if any.
type Verdict struct {
	Status element.ModerationStatus
	Reason element.ModerationReason
	Term   string
}

// Terminal reports whether the verdict moves an element out of Pending.
func (v Verdict) Terminal() bool {
	switch v.Status {
	case element.StatusApproved, element.StatusFlagged, element.StatusRejected:
		return true
	case element.StatusPending, element.StatusUnmoderated:
		return false
	default:
		return false
	}
}

// Classifier assigns a verdict to one element. Implementations may be slow or
// remote; the engine bounds them with a timeout.
type Classifier interface {
	Classify(ctx context.Context, el element.Element, cfg policy.Config) (Verdict, error)
}

// Heuristic is the built-in classifier: custom lists plus a weighted lexicon.
type Heuristic struct{}

func (Heuristic) Classify(ctx context.Context, el element.Element, cfg policy.Config) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}
	return Classify(el, cfg), nil
}

type lexiconEntry struct {
	term     string
	severity int
	reason   element.ModerationReason
}

// severity is 1..100; a term matches when severity >= 100 - sensitivity.
var lexicon = []lexiconEntry{
	{"stupid", 20, element.ReasonOffensiveContent},
	{"loser", 25, element.ReasonOffensiveContent},
	{"idiot", 30, element.ReasonOffensiveContent},
	{"moron", 40, element.ReasonOffensiveContent},
	{"dumbass", 55, element.ReasonOffensiveContent},
	{"bastard", 60, element.ReasonOffensiveContent},
	{"shit", 65, element.ReasonOffensiveContent},
	{"asshole", 70, element.ReasonOffensiveContent},
	{"bitch", 75, element.ReasonOffensiveContent},
	{"fuck", 80, element.ReasonOffensiveContent},
	{"retard", 90, element.ReasonOffensiveContent},
	{"cunt", 95, element.ReasonOffensiveContent},
	{"kill yourself", 100, element.ReasonOffensiveContent},
	{"kys", 100, element.ReasonOffensiveContent},
}

// hate symbols and obscene glyphs that are flagged whatever the sensitivity
const unwantedSymbols = "卐卍ᛋ☠\U0001F595"

// Classify is the pure moderation pass: allowlist, custom blocklist, unwanted
// symbols, then the lexicon scored by sensitivity. With nothing matched the
// element is Approved when auto-moderating and stays Pending otherwise.
func Classify(el element.Element, cfg policy.Config) Verdict {
	if !cfg.Enabled {
		return Verdict{Status: element.StatusUnmoderated}
	}
	cfg = cfg.Normalized()

	switch el.Type {
	case element.TypeText:
		if v, ok := classifyText(el.Text, cfg); ok {
			return v
		}
	case element.TypeRectangle, element.TypeEllipse, element.TypeLine, element.TypePencil:
		// shapes only carry text as an optional label
		if el.Text != "" && hasUnwantedSymbol(el.Text) {
			return Verdict{Status: element.StatusFlagged, Reason: element.ReasonUnwantedSymbols}
		}
	default:
		return Verdict{Status: element.StatusPending}
	}

	if cfg.AutoModerate {
		return Verdict{Status: element.StatusApproved}
	}
	return Verdict{Status: element.StatusPending}
}

func classifyText(text string, cfg policy.Config) (Verdict, bool) {
	forms := normalize(text)

	for _, term := range cfg.CustomAllowlist {
		if forms.plain == term || strings.Contains(forms.plain, term) {
			return Verdict{Status: element.StatusApproved, Term: term}, true
		}
	}

	for _, term := range cfg.CustomBlocklist {
		if forms.contains(term) {
			return Verdict{Status: element.StatusFlagged, Reason: element.ReasonProfaneLanguage, Term: term}, true
		}
	}

	if hasUnwantedSymbol(text) {
		return Verdict{Status: element.StatusFlagged, Reason: element.ReasonUnwantedSymbols}, true
	}

	threshold := policy.MaxSensitivity - cfg.Sensitivity
	for _, entry := range lexicon {
		if entry.severity < threshold {
			continue
		}
		if forms.hasWord(entry.term) {
			return Verdict{Status: element.StatusFlagged, Reason: entry.reason, Term: entry.term}, true
		}
	}
	return Verdict{}, false
}

type normalizedText struct {
	plain    string // case folded, accents stripped, whitespace collapsed
	leet     string // plain with digit/symbol substitutions folded back to letters
	squashed string // leet with every non-letter removed
}

var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

var leetReplacer = strings.NewReplacer(
	"0", "o", "1", "i", "3", "e", "4", "a", "5", "s", "7", "t",
	"@", "a", "$", "s", "!", "i", "+", "t",
)

func normalize(text string) normalizedText {
	stripped, _, err := transform.String(stripMarks, text)
	if err != nil {
		stripped = text
	}
	plain := strings.Join(strings.Fields(cases.Fold().String(stripped)), " ")
	leet := leetReplacer.Replace(plain)
	squashed := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return r
		}
		return -1
	}, leet)
	return normalizedText{plain: plain, leet: leet, squashed: squashed}
}

func (n normalizedText) contains(term string) bool {
	if strings.Contains(n.plain, term) || strings.Contains(n.leet, term) {
		return true
	}
	// spaced-out evasion such as "b a d w o r d"; short terms would over-match
	return len([]rune(term)) >= 4 && !strings.Contains(term, " ") && strings.Contains(n.squashed, term)
}

// hasWord matches whole words so that lexicon terms do not fire inside longer words.
func (n normalizedText) hasWord(term string) bool {
	for _, form := range []string{n.plain, n.leet} {
		words := strings.FieldsFunc(form, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		joined := " " + strings.Join(words, " ") + " "
		if strings.Contains(joined, " "+term+" ") {
			return true
		}
	}
	return false
}

func hasUnwantedSymbol(text string) bool {
	return strings.ContainsAny(text, unwantedSymbols)
}
