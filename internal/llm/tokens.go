package llm

// Token estimation for batch planning. These are deliberate approximations:
// an exact tokenizer would tie planning to one provider's vocabulary, and
// the budget already carries a safety margin. The contractual bound is that
// no planned batch exceeds 70% of the model's context window.
const (
	// charsPerToken approximates prose tokenisation for budget purposes.
	charsPerToken = 4

	// tokensPerItem covers one item's rendered form plus per-item prompt
	// framing.
	tokensPerItem = 200

	// contextWindowNum/contextWindowDen cap the payload at 70% of the
	// context window before reservations.
	contextWindowNum = 7
	contextWindowDen = 10

	// outputReserveTokens is held back for the model's response.
	outputReserveTokens = 4096

	// promptOverheadTokens covers role instructions and shape schema.
	promptOverheadTokens = 1024
)

// estimateTokens approximates the token count of free-form text.
func estimateTokens(text string) int {
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// MaxPayloadTokens computes the per-batch token budget for a model's
// context window: at most 70% of the window, minus the output reservation
// and prompt overhead.
func MaxPayloadTokens(contextWindow int) int {
	budget := contextWindow*contextWindowNum/contextWindowDen - outputReserveTokens - promptOverheadTokens
	if budget < 0 {
		return 0
	}
	return budget
}
