package sse

import (
	"io"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// chunkedReader delivers its chunks one per Read call, simulating an
// upstream body whose frames do not align with read boundaries.
type chunkedReader struct {
	chunks []string
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	if n == len(c.chunks[0]) {
		c.chunks = c.chunks[1:]
	} else {
		c.chunks[0] = c.chunks[0][n:]
	}
	return n, nil
}

var _ = Describe("Reader", func() {
	Describe("Next", func() {
		Context("with standard SSE events", func() {
			It("decodes a single event", func() {
				r := NewReader(strings.NewReader("data: hello world\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("hello world"))
				Expect(ev.Type).To(BeEmpty())
				Expect(ev.ID).To(BeEmpty())

				ev, err = r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev).To(BeNil())
			})

			It("decodes multiple events", func() {
				r := NewReader(strings.NewReader("data: first\n\ndata: second\n\n"))

				ev1, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev1.Data).To(Equal("first"))

				ev2, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev2.Data).To(Equal("second"))

				ev3, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev3).To(BeNil())
			})

			It("applies the event name to the following data lines", func() {
				r := NewReader(strings.NewReader("event: response.output_text.delta\ndata: {\"delta\":\"hi\"}\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Type).To(Equal("response.output_text.delta"))
				Expect(ev.Data).To(Equal("{\"delta\":\"hi\"}"))
			})

			It("resets the event name at the blank line", func() {
				input := "event: named\ndata: one\n\ndata: two\n\n"
				r := NewReader(strings.NewReader(input))

				ev1, _ := r.Next()
				Expect(ev1.Type).To(Equal("named"))

				ev2, _ := r.Next()
				Expect(ev2.Type).To(BeEmpty())
				Expect(ev2.Data).To(Equal("two"))
			})

			It("decodes the event ID", func() {
				r := NewReader(strings.NewReader("id: 42\ndata: hello\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.ID).To(Equal("42"))
				Expect(ev.Data).To(Equal("hello"))
			})

			It("joins multiple data lines with newline", func() {
				r := NewReader(strings.NewReader("data: line one\ndata: line two\ndata: line three\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("line one\nline two\nline three"))
			})
		})

		Context("with CRLF boundaries", func() {
			It("decodes \\r\\n\\r\\n delimited frames", func() {
				r := NewReader(strings.NewReader("data: hello\r\n\r\ndata: world\r\n\r\n"))

				ev1, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev1.Data).To(Equal("hello"))

				ev2, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev2.Data).To(Equal("world"))
			})
		})

		Context("with frames split across byte deliveries", func() {
			It("reassembles a frame delivered in two reads", func() {
				r := NewReader(&chunkedReader{chunks: []string{
					"data: {\"de",
					"lta\":\"hi\"}\n\n",
				}})

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("{\"delta\":\"hi\"}"))

				ev, err = r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev).To(BeNil())
			})

			It("reassembles a frame split in the middle of the terminator", func() {
				r := NewReader(&chunkedReader{chunks: []string{
					"data: hi\n",
					"\ndata: again\n\n",
				}})

				ev1, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev1.Data).To(Equal("hi"))

				ev2, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev2.Data).To(Equal("again"))
			})
		})

		Context("with irregular streams", func() {
			It("flushes a trailing frame without a terminator", func() {
				r := NewReader(strings.NewReader("data: incomplete"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev).NotTo(BeNil())
				Expect(ev.Data).To(Equal("incomplete"))

				ev, err = r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev).To(BeNil())
			})

			It("skips comment lines", func() {
				r := NewReader(strings.NewReader(": keep-alive\n\ndata: real\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("real"))
			})

			It("ignores non-conforming lines silently", func() {
				r := NewReader(strings.NewReader("retry: 3000\nbogus line\ndata: kept\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("kept"))
			})

			It("skips leading and keep-alive blank lines", func() {
				r := NewReader(strings.NewReader("\n\n\ndata: hi\n\n\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("hi"))

				ev, err = r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev).To(BeNil())
			})
		})
	})
})
