// Defines the validation interface for requests.

package dto

import "net/url"

// Validatable is implemented by request types that can validate their fields.
// The Wrap function in handler_wrapper.go uses this interface as a type
// constraint to ensure all request types provide validation.
type Validatable interface {
	Validate() error
}

// QueryBinder is implemented by requests that accept arbitrary query
// parameters in addition to their `query:` tagged fields.
type QueryBinder interface {
	BindQuery(q url.Values)
}
