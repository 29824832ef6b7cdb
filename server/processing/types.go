// Package processing turns a user message into a prompt, sends it to the
// text-generation service and formats the answer for display.
package processing

import "fmt"

// User-facing texts returned with success=false.
const (
	// RateLimitMessageFormat takes the suggested wait in seconds.
	RateLimitMessageFormat = "Rate limit reached. The Gemini API free tier allows only 2 requests per minute. Please wait %d seconds before trying again."

	// ServiceErrorMessage covers every other upstream failure.
	ServiceErrorMessage = "Error communicating with the AI service. Please try again later."

	// GenericErrorMessage is the catch-all for unexpected failures.
	GenericErrorMessage = "An error occurred. Please try again."
)

// RateLimitMessage renders RateLimitMessageFormat.
func RateLimitMessage(retryAfter int) string {
	return fmt.Sprintf(RateLimitMessageFormat, retryAfter)
}

// Request is one chat turn as seen by the processor.
type Request struct {
	// Message is the current user message, passed through verbatim
	Message string

	// Memory holds prior user messages, oldest first, without Message
	Memory []string

	// Role is the persona label; empty omits the role line
	Role string
}

// Response is the wire reply of /chat.
type Response struct {
	Content    string `json:"response"`
	Success    bool   `json:"success"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// FailureResponse builds a success=false reply.
func FailureResponse(message string) *Response {
	return &Response{Content: message}
}
