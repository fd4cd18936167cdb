// ABOUTME: Builds the ordered turn sequence sent to provider adapters
// ABOUTME: Search context rides as a leading system turn; formatting guidance travels as an option

package chat

import (
	"github.com/omnichat/gateway/internal/provider"
	"github.com/omnichat/gateway/internal/store"
)

// systemPrompt is the formatting guidance sent with every provider call. It
// travels on the adapter's system channel, not as a sequence turn, so adapters
// without such a channel can fold it themselves.
const systemPrompt = `You are a helpful assistant. Format every response in markdown.

- Use headings to separate distinct sections.
- Use fenced code blocks with a language tag for any code.
- Use bullet or numbered lists for enumerations and steps.
- Use tables when they make data easier to compare.
- Keep prose concise.`

// searchPreamble introduces the augmentation turn so the model treats it as
// background material rather than something the user said.
const searchPreamble = "Background search context for the user's next message:\n\n"

// buildTurns assembles the provider turn sequence: an optional search context
// turn, the stored history oldest-first, then the new user text. The stored
// user text is always the user's verbatim message; augmentation never leaks
// into persistence.
func buildTurns(prior []*store.Message, searchContext, userText string) []provider.Turn {
	turns := make([]provider.Turn, 0, len(prior)+2)
	if searchContext != "" {
		turns = append(turns, provider.Turn{
			Role:    provider.RoleSystem,
			Content: searchPreamble + searchContext,
		})
	}
	for _, msg := range prior {
		turns = append(turns, messageTurn(msg))
	}
	turns = append(turns, provider.Turn{Role: provider.RoleUser, Content: userText})
	return turns
}

// buildEditedTurns rebuilds the full conversation sequence with the edited
// user text substituted in place. The assistant message being regenerated is
// omitted; every other turn keeps its original position and content.
func buildEditedTurns(msgs []*store.Message, editedID, newText string, replacedAssistantID *string) []provider.Turn {
	turns := make([]provider.Turn, 0, len(msgs))
	for _, msg := range msgs {
		if replacedAssistantID != nil && msg.ID == *replacedAssistantID {
			continue
		}
		turn := messageTurn(msg)
		if msg.ID == editedID {
			turn.Content = newText
		}
		turns = append(turns, turn)
	}
	return turns
}

func messageTurn(msg *store.Message) provider.Turn {
	role := provider.RoleUser
	if msg.Sender == store.SenderAssistant {
		role = provider.RoleAssistant
	}
	return provider.Turn{Role: role, Content: msg.Content}
}
