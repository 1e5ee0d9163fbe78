package llm

// Stream delivers generated text as incremental chunks. Chunks closes
// when generation ends; Err reports what stopped it, if anything.
type Stream struct {
	Chunks <-chan string
	err    error
	done   chan struct{}
}

// Err blocks until the stream has ended and returns its terminal error.
func (s *Stream) Err() error {
	<-s.done
	return s.err
}

// NewStaticStream returns an already-completed stream delivering the
// given chunks. Fake generators in tests are its main consumer.
func NewStaticStream(err error, chunks ...string) *Stream {
	ch := make(chan string, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	done := make(chan struct{})
	close(done)
	return &Stream{Chunks: ch, err: err, done: done}
}

// NewPipedStream returns a live stream plus its producer side. The
// producer sends on ch and must call finish exactly once when done.
func NewPipedStream() (stream *Stream, ch chan<- string, finish func(error)) {
	c := make(chan string)
	s := &Stream{Chunks: c, done: make(chan struct{})}
	return s, c, func(err error) {
		s.err = err
		close(c)
		close(s.done)
	}
}
