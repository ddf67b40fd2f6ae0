package transcribe

// DecodingOptions controls how an engine searches for and selects a
// transcription. Values are compared with == in tests, so keep the struct
// free of slices and maps.
type DecodingOptions struct {
	Language string
	Task     string

	// Temperature 0 with no fallback increment gives greedy, repeatable decoding.
	Temperature          float32
	TemperatureIncrement float32

	BestOf        int
	BeamSize      int
	Patience      float32
	LengthPenalty float32

	// SuppressTokens is a comma separated token id list; "-1" suppresses
	// the special and non-speech tokens.
	SuppressTokens string

	ConditionOnPreviousText bool
	InitialPrompt           string
	FP16                    bool
}

// portugueseInformal is the fixed decoding policy for informal Brazilian Portuguese.
var portugueseInformal = DecodingOptions{
	Language:                "pt",
	Task:                    "transcribe",
	Temperature:             0,
	TemperatureIncrement:    0,
	BestOf:                  5,
	BeamSize:                5,
	Patience:                2,
	LengthPenalty:           1,
	SuppressTokens:          "-1",
	ConditionOnPreviousText: true,
	InitialPrompt:           "Transcrição em português brasileiro informal: ",
	FP16:                    false,
}

// PortugueseInformal returns a copy of the decoding policy used for every
// transcription.
func PortugueseInformal() DecodingOptions {
	return portugueseInformal
}
