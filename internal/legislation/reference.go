package legislation

import (
	"regexp"
	"strings"

	"pravnyk/internal/types"
)

// codeAliases maps the conventional short names of the major codes to
// their register identifiers.
var codeAliases = map[string]string{
	"ЦПК": "1618-15", // Цивільний процесуальний кодекс
	"ГПК": "1798-12", // Господарський процесуальний кодекс
	"КАС": "2747-15", // Кодекс адміністративного судочинства
	"КПК": "4651-17", // Кримінальний процесуальний кодекс
	"ЦК":  "435-15",  // Цивільний кодекс
	"ГК":  "436-15",  // Господарський кодекс
	"ПКУ": "2755-17", // Податковий кодекс
}

// actIDToAlias is the reverse lookup for FormatReference.
var actIDToAlias = func() map[string]string {
	m := make(map[string]string, len(codeAliases))
	for alias, id := range codeAliases {
		m[id] = alias
	}
	return m
}()

var (
	// "ст. 625 ЦК", "статті 625 ЦК України"
	refArticleFirstRe = regexp.MustCompile(
		`(?i)ст(?:\.|атт[іяею])?\s*(\d+(?:-\d+)?)\s+([А-ЯІЇЄҐ]{2,4}|\d+-[\dа-яІVXа-яіїє]+)`)
	// "ЦПК ст. 175", "1618-15 ст. 354"
	refActFirstRe = regexp.MustCompile(
		`(?i)([А-ЯІЇЄҐ]{2,4}|\d+-[\dа-яІVXа-яіїє]+)\s+ст(?:\.|атт[іяею])?\s*(\d+(?:-\d+)?)`)

	registerIDRe = regexp.MustCompile(`^\d+-`)
)

// ParseReference resolves a free-form citation into an act identifier and
// article number. It accepts the article-first form ("ст. 625 ЦК"), the
// act-first form ("ЦПК ст. 175"), and raw register ids ("1618-15 ст. 354").
// Unresolvable input yields nil, not an error: callers treat it as "no
// reference found".
func ParseReference(text string) *types.ArticleReference {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if m := refArticleFirstRe.FindStringSubmatch(text); m != nil {
		if actID := resolveAct(m[2]); actID != "" {
			return &types.ArticleReference{ActID: actID, ArticleNumber: m[1]}
		}
	}
	if m := refActFirstRe.FindStringSubmatch(text); m != nil {
		if actID := resolveAct(m[1]); actID != "" {
			return &types.ArticleReference{ActID: actID, ArticleNumber: m[2]}
		}
	}
	return nil
}

// resolveAct turns a short code or a raw register id into a register id.
func resolveAct(token string) string {
	upper := strings.ToUpper(token)
	if id, ok := codeAliases[upper]; ok {
		return id
	}
	// Raw register ids look like "1618-15": digits, dash, suffix.
	if registerIDRe.MatchString(token) {
		return token
	}
	return ""
}

// FormatReference renders a reference back into the conventional short
// form, preferring the code alias when one exists.
func FormatReference(ref *types.ArticleReference) string {
	if ref == nil || ref.ArticleNumber == "" {
		return ""
	}
	act := ref.ActID
	if alias, ok := actIDToAlias[ref.ActID]; ok {
		act = alias
	}
	return "ст. " + ref.ArticleNumber + " " + act
}
