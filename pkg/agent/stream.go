package agent

import (
	"context"
	"strings"
	"sync"
)

// Producer emits the chunks of a stream. It must stop once emit returns an error.
type Producer func(ctx context.Context, emit func(chunk string) error) error

// Stream is a finite sequence of text chunks produced on its own goroutine.
// It is read once, by a single consumer:
//
//	for stream.Next() {
//		fmt.Print(stream.Text())
//	}
//	err := stream.Err()
type Stream struct {
	chunks chan string
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once

	current string
	err     error
}

func NewStream(ctx context.Context, produce Producer) *Stream {
	ctx, cancel := context.WithCancel(ctx)

	s := &Stream{
		chunks: make(chan string),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		defer close(s.done)
		defer close(s.chunks)

		s.err = produce(ctx, func(chunk string) error {
			select {
			case s.chunks <- chunk:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	return s
}

// Next advances to the next chunk and reports whether there is one.
func (s *Stream) Next() bool {
	chunk, ok := <-s.chunks
	if !ok {
		return false
	}

	s.current = chunk

	return true
}

func (s *Stream) Text() string {
	return s.current
}

// Err returns the producer error once Next returned false.
func (s *Stream) Err() error {
	<-s.done

	return s.err
}

// Close stops the producer and waits for it to return. Closing twice is a no-op.
func (s *Stream) Close() {
	s.once.Do(func() {
		s.cancel()

		for range s.chunks {
		}

		<-s.done
	})
}

// Collect reads the rest of the stream and concatenates it.
func (s *Stream) Collect() (string, error) {
	defer s.Close()

	var b strings.Builder
	for s.Next() {
		b.WriteString(s.Text())
	}

	if err := s.Err(); err != nil {
		return b.String(), err
	}

	return b.String(), nil
}
