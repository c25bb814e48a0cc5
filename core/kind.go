package core

// GenerationKind names the type of work a backend produces.
type GenerationKind string

const (
	// KindText is a chat / text completion.
	KindText GenerationKind = "text"
	// KindSpeech is a speech synthesis.
	KindSpeech GenerationKind = "speech"
	// KindImage is an image generation.
	KindImage GenerationKind = "image"
	// KindEmbedding is an embedding vector computation.
	KindEmbedding GenerationKind = "embedding"
)

// String returns the kind name.
func (k GenerationKind) String() string { return string(k) }
