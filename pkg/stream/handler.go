package stream

import "context"

// Handler is the unified interface for consuming streaming responses.
// Every provider adapter and every display sink speaks this contract.
type Handler interface {
	// OnChunk is called when a new chunk of content is received.
	OnChunk(chunk []byte) error

	// OnComplete is called when streaming is complete with final content.
	OnComplete(finalContent string) error

	// OnError is called when an error occurs during streaming.
	OnError(err error)
}

// HandlerFunc is a function adapter for Handler interface
type HandlerFunc struct {
	ChunkFunc    func(chunk []byte) error
	CompleteFunc func(finalContent string) error
	ErrorFunc    func(err error)
}

// OnChunk implements Handler
func (h HandlerFunc) OnChunk(chunk []byte) error {
	if h.ChunkFunc != nil {
		return h.ChunkFunc(chunk)
	}
	return nil
}

// OnComplete implements Handler
func (h HandlerFunc) OnComplete(finalContent string) error {
	if h.CompleteFunc != nil {
		return h.CompleteFunc(finalContent)
	}
	return nil
}

// OnError implements Handler
func (h HandlerFunc) OnError(err error) {
	if h.ErrorFunc != nil {
		h.ErrorFunc(err)
	}
}

// ToStreamingFunc converts a Handler to the streaming function signature used
// by callback-based provider SDKs (langchaingo's llms.WithStreamingFunc).
func ToStreamingFunc(handler Handler) func(context.Context, []byte) error {
	return func(ctx context.Context, chunk []byte) error {
		select {
		case <-ctx.Done():
			handler.OnError(ctx.Err())
			return ctx.Err()
		default:
			return handler.OnChunk(chunk)
		}
	}
}

// Ensure implementations satisfy the interface
var _ Handler = HandlerFunc{}
