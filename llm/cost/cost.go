// Package cost gives rough pre-flight price estimates shown before a request
// is sent. Word counts stand in for tokens, so figures are approximate.
package cost

import "strings"

const tokenizeRatio = 0.7

const (
	// ReferenceModel prices the prompt part of image and audio requests.
	ReferenceModel = "text-davinci-003"
	SpeechModel    = "whisper-1"
)

// rates mixes units: text models are per token, whisper-1 is per minute and
// image sizes are per image.
var rates = map[string]float64{
	"text-davinci-003":   0.02 / 1000,
	"gpt-3.5-turbo":      0.002 / 1000,
	"gpt-3.5-turbo-0301": 0.002 / 1000,
	"whisper-1":          0.006,
	"256x256":            0.016,
	"512x512":            0.018,
	"1024x1024":          0.02,
}

// Rate returns the table entry for a model or image size.
func Rate(key string) (float64, bool) {
	r, ok := rates[key]
	return r, ok
}

// words splits on single spaces, so runs of spaces count as extra words.
func words(text string) int {
	return len(strings.Split(text, " "))
}

func TokenCost(text, model string, samples int) float64 {
	rate, ok := rates[model]
	if text == "" || !ok {
		return 0
	}
	return float64(words(text)) * tokenizeRatio * rate * float64(samples)
}

func ImageCost(size, prompt string, samples int) float64 {
	rate, ok := rates[size]
	if !ok {
		return 0
	}
	return TokenCost(prompt, ReferenceModel, 1) + rate*float64(samples)
}

// AudioCost returns 0 when the duration is unknown.
func AudioCost(minutes *float64, prompt string, samples int) float64 {
	if minutes == nil {
		return 0
	}
	return TokenCost(prompt, ReferenceModel, 1) + rates[SpeechModel]*(*minutes)*float64(samples)
}
