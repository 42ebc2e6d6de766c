package chat

type Conversation struct {
	ID       string
	Title    string
	Messages []Message
	Model    string
	Provider string
}

func NewConversation(provider, model string) Conversation {
	return Conversation{
		Messages: make([]Message, 0),
		Model:    model,
		Provider: provider,
	}
}

func NewConversationWithSystem(provider, model, systemPrompt string) Conversation {
	conv := NewConversation(provider, model)
	if systemPrompt != "" {
		conv = AddMessage(conv, NewSystemMessage(systemPrompt))
	}
	return conv
}

func AddMessage(conv Conversation, msg Message) Conversation {
	messages := make([]Message, len(conv.Messages)+1)
	copy(messages, conv.Messages)
	messages[len(conv.Messages)] = msg

	conv.Messages = messages
	return conv
}

func GetMessages(conv Conversation) []Message {
	result := make([]Message, len(conv.Messages))
	copy(result, conv.Messages)
	return result
}

func GetMessageCount(conv Conversation) int {
	return len(conv.Messages)
}

func GetLastMessage(conv Conversation) (Message, bool) {
	if len(conv.Messages) == 0 {
		return Message{}, false
	}
	return conv.Messages[len(conv.Messages)-1], true
}

func GetLastAssistantMessage(conv Conversation) (Message, bool) {
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].IsAssistant() {
			return conv.Messages[i], true
		}
	}
	return Message{}, false
}

func GetLastUserMessage(conv Conversation) (Message, bool) {
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].IsUser() {
			return conv.Messages[i], true
		}
	}
	return Message{}, false
}

func GetMessagesByRole(conv Conversation, role string) []Message {
	var result []Message
	for _, msg := range conv.Messages {
		if msg.Role == role {
			result = append(result, msg)
		}
	}
	return result
}

// LastN returns the most recent n messages, preserving any leading system
// message so the provider always sees the system prompt.
func LastN(conv Conversation, n int) []Message {
	if n <= 0 || len(conv.Messages) <= n {
		return GetMessages(conv)
	}

	tail := conv.Messages[len(conv.Messages)-n:]
	if conv.Messages[0].IsSystem() && !tail[0].IsSystem() {
		result := make([]Message, 0, n+1)
		result = append(result, conv.Messages[0])
		result = append(result, tail...)
		return result
	}

	result := make([]Message, n)
	copy(result, tail)
	return result
}

func IsEmpty(conv Conversation) bool {
	return len(conv.Messages) == 0
}

func HasSystemMessage(conv Conversation) bool {
	for _, msg := range conv.Messages {
		if msg.IsSystem() {
			return true
		}
	}
	return false
}

func WithModel(conv Conversation, model string) Conversation {
	conv.Model = model
	return conv
}
