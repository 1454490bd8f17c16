package upstream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/tidwall/gjson"

	"github.com/coriolislabs/chatedge/pkg/chat"
	"github.com/coriolislabs/chatedge/pkg/logger"
)

var _ = Describe("Client", func() {
	var (
		server *httptest.Server
		client *Client
	)

	AfterEach(func() {
		if server != nil {
			server.Close()
		}
	})

	newClient := func(handler http.HandlerFunc) {
		server = httptest.NewServer(handler)
		client = NewClient(server.URL, "sk-test", logger.Nop())
	}

	Describe("OpenStream", func() {
		It("returns the body of a streaming response", func() {
			newClient(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodPost))
				Expect(r.URL.Path).To(Equal("/chat/completions"))
				Expect(r.Header.Get("Authorization")).To(Equal("Bearer sk-test"))
				Expect(r.Header.Get("Accept")).To(Equal("text/event-stream"))

				w.Header().Set("Content-Type", "text/event-stream")
				io.WriteString(w, "data: [DONE]\n\n")
			})

			body, err := client.OpenStream(context.Background(), []byte(`{"stream":true}`))
			Expect(err).NotTo(HaveOccurred())
			defer body.Close()

			raw, err := io.ReadAll(body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).To(Equal("data: [DONE]\n\n"))
		})

		It("drains non-2xx responses into an APIError", func() {
			newClient(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				io.WriteString(w, `{"error":{"message":"bad"}}`)
			})

			_, err := client.OpenStream(context.Background(), []byte(`{}`))
			var apiErr *APIError
			Expect(err).To(BeAssignableToTypeOf(apiErr))
			apiErr = err.(*APIError)
			Expect(apiErr.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(apiErr.Body).To(ContainSubstring("bad"))
		})
	})

	Describe("Complete", func() {
		It("extracts chat-completions answer text", func() {
			newClient(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"Paris"},"finish_reason":"stop"}]}`)
			})

			text, err := client.Complete(context.Background(), []byte(`{}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("Paris"))
		})

		It("falls back to alternate response shapes", func() {
			newClient(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `{"output_text":"Lyon"}`)
			})

			text, err := client.Complete(context.Background(), []byte(`{}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("Lyon"))
		})

		It("accepts a present but empty answer", func() {
			newClient(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":""},"finish_reason":"stop"}]}`)
			})

			text, err := client.Complete(context.Background(), []byte(`{}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal(""))
		})

		It("reports a response with no answer text", func() {
			newClient(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `{"choices":[]}`)
			})

			_, err := client.Complete(context.Background(), []byte(`{}`))
			Expect(err).To(MatchError(ContainSubstring("no answer text")))
		})
	})

	Describe("ListModels", func() {
		It("passes through the upstream status and body", func() {
			newClient(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/models"))
				io.WriteString(w, `{"data":[{"id":"gpt-4o-mini"}]}`)
			})

			status, body, err := client.ListModels(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(http.StatusOK))
			Expect(gjson.GetBytes(body, "data.0.id").String()).To(Equal("gpt-4o-mini"))
		})
	})
})

var _ = Describe("Payload", func() {
	It("omits unset optional fields", func() {
		body, err := Payload{
			Model:    "gpt-4o-mini",
			Messages: []chat.Message{{Role: chat.RoleUser, Content: "hi"}},
			Stream:   true,
		}.Encode()
		Expect(err).NotTo(HaveOccurred())

		Expect(gjson.GetBytes(body, "temperature").Exists()).To(BeFalse())
		Expect(gjson.GetBytes(body, "top_p").Exists()).To(BeFalse())
		Expect(gjson.GetBytes(body, "seed").Exists()).To(BeFalse())
		Expect(gjson.GetBytes(body, "tools").Exists()).To(BeFalse())
		Expect(gjson.GetBytes(body, "reasoning_effort").Exists()).To(BeFalse())
		Expect(gjson.GetBytes(body, "stream").Bool()).To(BeTrue())
	})
})

var _ = Describe("Blocking", func() {
	It("disables streaming and drops tools, preserving the rest", func() {
		in := []byte(`{"model":"m","messages":[{"role":"user","content":"hi"}],"stream":true,"temperature":0.5,"tools":[{"type":"web_search"}]}`)

		out := Blocking(in)
		Expect(gjson.GetBytes(out, "stream").Bool()).To(BeFalse())
		Expect(gjson.GetBytes(out, "tools").Exists()).To(BeFalse())
		Expect(gjson.GetBytes(out, "temperature").Num).To(Equal(0.5))
		Expect(gjson.GetBytes(out, "messages.0.content").String()).To(Equal("hi"))
	})
})
