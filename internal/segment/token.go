package segment

// TokenCounter returns an integer token count for a string (spec.md §4.3).
// The engine treats token counting as a pluggable capability so a host can
// swap in a model-specific tokenizer; this package ships one dependency-free
// approximation for standalone use and tests.
type TokenCounter interface {
	Count(text string) int
}

// ApproxTokenCounter estimates tokens as roughly four characters per token,
// the common rule of thumb for English text against BPE-style tokenizers.
// It exists so the segmenter is runnable without a real tokenizer wired in;
// production deployments should supply one backed by the same tokenizer the
// summarizer's model uses.
type ApproxTokenCounter struct{}

func (ApproxTokenCounter) Count(text string) int {
	if len(text) == 0 {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
