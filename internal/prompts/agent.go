package prompts

// EmptyResponseFallback is the user-facing message emitted when the
// model finishes a turn without producing any content.
const EmptyResponseFallback = "I processed your request but wasn't able to compose a response. Please try again."

// TurnFailed is the user-facing message for a turn aborted by a model
// or transport failure.
const TurnFailed = "Something went wrong while generating a response. Please try again."
