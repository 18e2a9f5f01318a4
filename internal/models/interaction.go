package models

// Origin identifies who produced an Interaction
type Origin string

const (
	OriginUser Origin = "user"
	OriginAI   Origin = "ai"
)

// InteractionKind selects how the chat layer renders an Interaction
type InteractionKind string

const (
	KindMessage        InteractionKind = "message"
	KindCodegenSummary InteractionKind = "codegen-summary"
)

// Interaction is a unit of chat output. Message is set for KindMessage,
// Paths for KindCodegenSummary.
type Interaction struct {
	Origin  Origin          `json:"origin"`
	Kind    InteractionKind `json:"kind"`
	Message string          `json:"message,omitempty"`
	Paths   []string        `json:"paths,omitempty"`
}

// AIMessage builds a plain chat message from the assistant.
func AIMessage(text string) Interaction {
	return Interaction{Origin: OriginAI, Kind: KindMessage, Message: text}
}

// UserMessage builds a plain chat message from the user.
func UserMessage(text string) Interaction {
	return Interaction{Origin: OriginUser, Kind: KindMessage, Message: text}
}

// CodegenSummary lists the paths touched by a generation.
func CodegenSummary(paths []string) Interaction {
	return Interaction{Origin: OriginAI, Kind: KindCodegenSummary, Paths: paths}
}
