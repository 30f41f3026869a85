package confirm

import (
	"context"
	"fmt"

	"github.com/bdobrica/Alfred/internal/alfred/oracle"
)

// verdictSchema validates the oracle's yes/no classification JSON.
var verdictSchema = oracle.MustCompileSchema("confirmation-verdict.json", `{
	"type": "object",
	"properties": {
		"classification": {"enum": ["affirmative", "negative", "unclear"]}
	},
	"required": ["classification"]
}`)

type verdictDoc struct {
	Classification string `json:"classification"`
}

// confirmationSystemPrompt instructs the oracle on the minimal yes/no/unclear
// classification task. Kept deliberately tiny: this call runs on every
// message while a confirmation is pending.
const confirmationSystemPrompt = `A user was asked to confirm or cancel a pending action.
Classify their reply.

Respond ONLY with valid JSON:
{"classification": "affirmative"} if they agree (e.g. "yes", "yep", "go ahead", "do it"),
{"classification": "negative"} if they decline (e.g. "no", "cancel", "never mind"),
{"classification": "unclear"} if the reply is unrelated to the confirmation.`

// OracleResolver classifies confirmation replies with a minimal oracle call.
// It implements Resolver.
type OracleResolver struct {
	provider oracle.Provider
}

// NewOracleResolver returns a Resolver backed by provider.
func NewOracleResolver(provider oracle.Provider) *OracleResolver {
	return &OracleResolver{provider: provider}
}

// ClassifyConfirmation asks the oracle whether message affirms, declines, or
// ignores the pending confirmation. Oracle failures propagate so the gate
// can degrade the turn instead of guessing.
func (r *OracleResolver) ClassifyConfirmation(ctx context.Context, message string) (Verdict, error) {
	raw, err := r.provider.Generate(ctx, oracle.Request{
		System:    confirmationSystemPrompt,
		User:      fmt.Sprintf("Their reply: %q", message),
		ForceJSON: true,
		MaxTokens: 32,
	})
	if err != nil {
		return VerdictUnclear, fmt.Errorf("confirm: classify: %w", err)
	}

	var doc verdictDoc
	if err := oracle.DecodeJSON(verdictSchema, raw, &doc); err != nil {
		return VerdictUnclear, fmt.Errorf("confirm: classify: %w", err)
	}

	switch Verdict(doc.Classification) {
	case VerdictAffirmative, VerdictNegative, VerdictUnclear:
		return Verdict(doc.Classification), nil
	default:
		// Unreachable given the schema enum, but defensive normalization
		// costs nothing.
		return VerdictUnclear, nil
	}
}
