package llm

import "context"

// Unavailable stands in when no provider could be configured. Every call
// fails fatally so jobs end with a readable error instead of hanging.
type Unavailable struct {
	Reason string
}

func (u Unavailable) err() error {
	msg := "llm provider not configured"
	if u.Reason != "" {
		msg += ": " + u.Reason
	}
	return &Error{Class: ClassFatal, Auth: true, Message: msg}
}

func (u Unavailable) Upload(context.Context, Document) (ArtifactRef, error) {
	return ArtifactRef{}, u.err()
}

func (u Unavailable) Extract(context.Context, ExtractRequest) (Result, error) {
	return Result{}, u.err()
}

func (u Unavailable) Compare(context.Context, CompareRequest) (Result, error) {
	return Result{}, u.err()
}

func (Unavailable) Delete(context.Context, ArtifactRef) {}
