// Package features turns article text into the fixed-size lexical vector
// consumed by the statistical scorer.
package features

import (
	"strings"
	"sync"
	"unicode"

	"github.com/jdkato/prose/tokenize"
)

// Size is the length of every Vector.
const Size = 5

// Vector holds, in order: word count, mean word length, mean sentence
// length in words, digit-token count, all-caps-token count.
type Vector [Size]float64

// Slice returns the vector as a fresh slice.
func (v Vector) Slice() []float64 {
	out := make([]float64, Size)
	copy(out, v[:])
	return out
}

type tokenizer interface {
	Sentences(text string) []string
	// Words tokenizes a single sentence.
	Words(sentence string) []string
}

// proseTokenizer splits sentences with Punkt and words with the Treebank rules.
type proseTokenizer struct {
	sent *tokenize.PunktSentenceTokenizer
	word *tokenize.TreebankWordTokenizer
}

func (p proseTokenizer) Sentences(text string) []string {
	return p.sent.Tokenize(text)
}

func (p proseTokenizer) Words(sentence string) []string {
	return p.word.Tokenize(sentence)
}

var defaultTokenizer = sync.OnceValue(func() tokenizer {
	return proseTokenizer{
		sent: tokenize.NewPunktSentenceTokenizer(),
		word: tokenize.NewTreebankWordTokenizer(),
	}
})

// Extract computes the feature vector of text. It never panics; on any
// internal failure it returns the zero vector.
func Extract(text string) Vector {
	return extract(text, defaultTokenizer)
}

func extract(text string, tok func() tokenizer) (v Vector) {
	defer func() {
		if r := recover(); r != nil {
			v = Vector{}
		}
	}()
	if strings.TrimSpace(text) == "" {
		return Vector{}
	}

	words, sentences, sentWords, ok := tokenizeSafe(text, tok)
	if !ok {
		words, sentences, sentWords = splitFallback(text)
	}
	if len(words) == 0 {
		return Vector{}
	}

	var chars, digits, caps int
	for _, w := range words {
		chars += len([]rune(w))
		if isDigits(w) {
			digits++
		}
		if isShout(w) {
			caps++
		}
	}

	avgSent := 0.0
	if sentences > 0 {
		avgSent = float64(sentWords) / float64(sentences)
	}

	n := float64(len(words))
	return Vector{n, float64(chars) / n, avgSent, float64(digits), float64(caps)}
}

// tokenizeSafe 逐句分词一次；任何 panic 都返回 ok=false，由调用方退回空白/句点切分。
func tokenizeSafe(text string, tok func() tokenizer) (words []string, sentences, sentWords int, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			words, sentences, sentWords, ok = nil, 0, 0, false
		}
	}()
	t := tok()
	sents := t.Sentences(text)
	for _, s := range sents {
		w := t.Words(s)
		words = append(words, w...)
		sentWords += len(w)
	}
	return words, len(sents), sentWords, true
}

func splitFallback(text string) (words []string, sentences, sentWords int) {
	parts := strings.Split(text, ".")
	for _, p := range parts {
		sentWords += len(strings.Fields(p))
	}
	return strings.Fields(text), len(parts), sentWords
}

func isDigits(w string) bool {
	if w == "" {
		return false
	}
	for _, r := range w {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func isShout(w string) bool {
	n := 0
	for _, r := range w {
		if !unicode.IsLetter(r) || !unicode.IsUpper(r) {
			return false
		}
		n++
	}
	return n > 1
}
