// Package agent implements the agent execution engine: the ReAct loop,
// tool dispatch, cost accounting, tracing, and the supporting data model
// that ties them together.
package agent

import "fmt"

// Role identifies the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockKind tags the concrete type held by a Block.
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockToolUse    BlockKind = "tool_use"
	BlockToolResult BlockKind = "tool_result"
)

// Block is a tagged union over the three content-block shapes a Message can
// carry. Exactly one of Text, ToolUse, or ToolResult is populated, selected
// by Kind.
type Block struct {
	Kind BlockKind

	// Text is populated when Kind == BlockText.
	Text string

	// ToolUse fields, populated when Kind == BlockToolUse.
	ToolUseID string
	ToolName  string
	ToolInput map[string]any

	// ToolResult fields, populated when Kind == BlockToolResult.
	ToolResultForID string
	ToolOutput      string
	IsError         bool
}

// NewTextBlock builds a Text content block.
func NewTextBlock(text string) Block {
	return Block{Kind: BlockText, Text: text}
}

// NewToolUseBlock builds a ToolUse content block.
func NewToolUseBlock(id, name string, input map[string]any) Block {
	return Block{Kind: BlockToolUse, ToolUseID: id, ToolName: name, ToolInput: input}
}

// NewToolResultBlock builds a ToolResult content block answering toolUseID.
func NewToolResultBlock(toolUseID, output string, isError bool) Block {
	return Block{Kind: BlockToolResult, ToolResultForID: toolUseID, ToolOutput: output, IsError: isError}
}

// Message is one turn in a Conversation: a role plus an ordered list of
// content blocks.
type Message struct {
	Role    Role
	Content []Block
}

// Conversation is an ordered sequence of Messages plus a system prompt that
// is never itself part of the message list (invariant I3).
type Conversation struct {
	SystemPrompt string
	Messages     []Message
}

// NewConversation creates an empty conversation with the given system prompt.
func NewConversation(systemPrompt string) *Conversation {
	return &Conversation{SystemPrompt: systemPrompt}
}

// AppendUserText appends a single-block user message.
func (c *Conversation) AppendUserText(text string) {
	c.Messages = append(c.Messages, Message{Role: RoleUser, Content: []Block{NewTextBlock(text)}})
}

// AppendAssistant appends an assistant message with the given blocks.
func (c *Conversation) AppendAssistant(blocks []Block) {
	c.Messages = append(c.Messages, Message{Role: RoleAssistant, Content: blocks})
}

// AppendToolResults appends a single user message carrying one ToolResult
// block per call, in the order the calls were issued (§5 ordering guarantee).
func (c *Conversation) AppendToolResults(results []Block) {
	c.Messages = append(c.Messages, Message{Role: RoleUser, Content: results})
}

// ToolUses returns every ToolUse block in the message, in order.
func (m Message) ToolUses() []Block {
	var uses []Block
	for _, b := range m.Content {
		if b.Kind == BlockToolUse {
			uses = append(uses, b)
		}
	}
	return uses
}

// Text concatenates every Text block in the message.
func (m Message) Text() string {
	var out string
	for _, b := range m.Content {
		if b.Kind == BlockText {
			out += b.Text
		}
	}
	return out
}

// String renders a block for debugging and trace summaries.
func (b Block) String() string {
	switch b.Kind {
	case BlockText:
		return fmt.Sprintf("text(%d chars)", len(b.Text))
	case BlockToolUse:
		return fmt.Sprintf("tool_use(%s, id=%s)", b.ToolName, b.ToolUseID)
	case BlockToolResult:
		return fmt.Sprintf("tool_result(for=%s, error=%v)", b.ToolResultForID, b.IsError)
	default:
		return "unknown_block"
	}
}
