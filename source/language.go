package source

import (
	"sync"

	"github.com/pemistahl/lingua-go"
)

// 新闻源常见语言。
var sourceLanguages = []lingua.Language{
	lingua.English,
	lingua.Russian,
	lingua.Ukrainian,
	lingua.Polish,
	lingua.Romanian,
	lingua.Bulgarian,
	lingua.Hungarian,
	lingua.Czech,
	lingua.Turkish,
	lingua.Kazakh,
	lingua.German,
	lingua.French,
	lingua.Spanish,
	lingua.Arabic,
}

// Detector guesses the language of source text. The underlying models are
// loaded on first use.
type Detector struct {
	once     sync.Once
	detector lingua.LanguageDetector
}

func NewDetector() *Detector { return &Detector{} }

// Detect returns the language name (e.g. "Russian"); ok is false when the
// text is too ambiguous to call.
func (d *Detector) Detect(text string) (string, bool) {
	d.once.Do(func() {
		d.detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(sourceLanguages...).
			WithPreloadedLanguageModels().
			Build()
	})
	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return "", false
	}
	return lang.String(), true
}
