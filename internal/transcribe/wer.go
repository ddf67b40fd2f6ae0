package transcribe

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// WERResult holds detailed word error rate results.
type WERResult struct {
	WER           float64 // Word Error Rate (0.0 = perfect, 1.0+ = very bad)
	Substitutions int     // Words replaced with different words
	Insertions    int     // Extra words in hypothesis
	Deletions     int     // Words missing from hypothesis
	RefWords      int     // Total words in reference
}

// ComputeWER calculates the word error rate between a reference transcript
// and a hypothesis. Both are NFC-normalized, lowercased and stripped of
// punctuation before comparison, so "Você" typed with a combining accent
// matches the precomposed form.
// WER = (Substitutions + Insertions + Deletions) / ReferenceWordCount.
func ComputeWER(reference, hypothesis string) WERResult {
	return wordErrors(normalizeWords(reference, false), normalizeWords(hypothesis, false))
}

// ComputeWERFolded is ComputeWER with diacritics removed, for scoring
// informal speech where "tá" and "ta" should count as the same word.
func ComputeWERFolded(reference, hypothesis string) WERResult {
	return wordErrors(normalizeWords(reference, true), normalizeWords(hypothesis, true))
}

func wordErrors(refWords, hypWords []string) WERResult {
	n := len(refWords)
	if n == 0 {
		return WERResult{}
	}
	m := len(hypWords)

	// DP table for minimum edit distance.
	d := make([][]int, n+1)
	for i := range d {
		d[i] = make([]int, m+1)
		d[i][0] = i
	}
	for j := 0; j <= m; j++ {
		d[0][j] = j
	}

	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if refWords[i-1] == hypWords[j-1] {
				d[i][j] = d[i-1][j-1]
				continue
			}
			d[i][j] = min(d[i-1][j-1], d[i-1][j], d[i][j-1]) + 1
		}
	}

	var subs, ins, dels int
	i, j := n, m
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && refWords[i-1] == hypWords[j-1]:
			i--
			j--
		case i > 0 && j > 0 && d[i][j] == d[i-1][j-1]+1:
			subs++
			i--
			j--
		case i > 0 && d[i][j] == d[i-1][j]+1:
			dels++
			i--
		default:
			ins++
			j--
		}
	}

	return WERResult{
		WER:           float64(subs+ins+dels) / float64(n),
		Substitutions: subs,
		Insertions:    ins,
		Deletions:     dels,
		RefWords:      n,
	}
}

// normalizeWords lowercases text, strips punctuation, and splits into words.
// With fold set, combining marks are dropped after decomposition.
func normalizeWords(s string, fold bool) []string {
	var t transform.Transformer = norm.NFC
	if fold {
		t = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	}
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}

	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return r
	}, s)
	return strings.Fields(s)
}
