package failure

// Category classifies why a provider attempt failed.
type Category string

const (
	RateLimited       Category = "rateLimited"
	AuthInvalid       Category = "authInvalid"
	EntitlementDenied Category = "entitlementDenied"
	NetworkError      Category = "networkError"
	ServerError       Category = "serverError"
	CircuitOpen       Category = "circuitOpen"
	Timeout           Category = "timeout"
	DecodingError     Category = "decodingError"
)

// Policy describes how the dispatcher reacts to a category.
type Policy struct {
	// Retryable failures are retried on the same provider before falling back.
	Retryable bool
	// BreakerFailure failures count against the provider's circuit breaker.
	BreakerFailure bool
}

var policies = map[Category]Policy{
	RateLimited:       {Retryable: true, BreakerFailure: true},
	NetworkError:      {Retryable: true, BreakerFailure: true},
	Timeout:           {Retryable: true, BreakerFailure: true},
	ServerError:       {Retryable: true, BreakerFailure: true},
	AuthInvalid:       {Retryable: false, BreakerFailure: true},
	EntitlementDenied: {Retryable: false, BreakerFailure: true},
	DecodingError:     {Retryable: false, BreakerFailure: true},
	CircuitOpen:       {Retryable: false, BreakerFailure: false},
}

var ordered = []Category{
	RateLimited, AuthInvalid, EntitlementDenied, NetworkError,
	ServerError, CircuitOpen, Timeout, DecodingError,
}

// PolicyFor returns the policy of c. Unknown categories are treated as
// non-retryable breaker failures.
func PolicyFor(c Category) Policy {
	if p, ok := policies[c]; ok {
		return p
	}
	return Policy{BreakerFailure: true}
}

// All returns every category.
func All() []Category {
	out := make([]Category, len(ordered))
	copy(out, ordered)
	return out
}

func (c Category) Valid() bool {
	_, ok := policies[c]
	return ok
}

func (c Category) String() string {
	return string(c)
}
