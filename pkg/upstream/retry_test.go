package upstream

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/tidwall/gjson"
)

var _ = Describe("StripUnsupported", func() {
	var payload []byte

	BeforeEach(func() {
		payload = []byte(`{"model":"o1-mini","messages":[{"role":"user","content":"hi"}],"stream":true,"max_tokens":256,"temperature":0.7,"top_p":0.9,"seed":7,"tools":[{"type":"web_search"}]}`)
	})

	It("strips the whole sampling group when temperature is rejected", func() {
		apiErr := &APIError{
			StatusCode: 400,
			Body:       `{"error":{"message":"Unsupported parameter: 'temperature' is not supported with this model.","param":"temperature","type":"invalid_request_error"}}`,
		}

		out, ok := StripUnsupported(payload, apiErr)
		Expect(ok).To(BeTrue())
		Expect(gjson.GetBytes(out, "temperature").Exists()).To(BeFalse())
		Expect(gjson.GetBytes(out, "top_p").Exists()).To(BeFalse())

		// Everything else is preserved.
		Expect(gjson.GetBytes(out, "model").String()).To(Equal("o1-mini"))
		Expect(gjson.GetBytes(out, "messages.0.content").String()).To(Equal("hi"))
		Expect(gjson.GetBytes(out, "max_tokens").Int()).To(Equal(int64(256)))
		Expect(gjson.GetBytes(out, "seed").Int()).To(Equal(int64(7)))
		Expect(gjson.GetBytes(out, "stream").Bool()).To(BeTrue())
		Expect(gjson.GetBytes(out, "tools").Exists()).To(BeTrue())
	})

	It("strips tool declarations when tools are rejected", func() {
		apiErr := &APIError{
			StatusCode: 400,
			Body:       `{"error":{"message":"This model does not support tools."}}`,
		}

		out, ok := StripUnsupported(payload, apiErr)
		Expect(ok).To(BeTrue())
		Expect(gjson.GetBytes(out, "tools").Exists()).To(BeFalse())
		Expect(gjson.GetBytes(out, "temperature").Exists()).To(BeTrue())
	})

	It("strips the reasoning hint when it is rejected", func() {
		reasoning := []byte(`{"model":"gpt-4o","messages":[],"stream":true,"reasoning_effort":"high"}`)
		apiErr := &APIError{
			StatusCode: 400,
			Body:       `{"error":{"message":"Unknown parameter: 'reasoning_effort'."}}`,
		}

		out, ok := StripUnsupported(reasoning, apiErr)
		Expect(ok).To(BeTrue())
		Expect(gjson.GetBytes(out, "reasoning_effort").Exists()).To(BeFalse())
	})

	It("matches on the param field when the message is vague", func() {
		apiErr := &APIError{
			StatusCode: 400,
			Body:       `{"error":{"message":"unsupported parameter","param":"top_p"}}`,
		}

		out, ok := StripUnsupported(payload, apiErr)
		Expect(ok).To(BeTrue())
		Expect(gjson.GetBytes(out, "top_p").Exists()).To(BeFalse())
	})

	It("ignores client errors that are not parameter rejections", func() {
		apiErr := &APIError{
			StatusCode: 401,
			Body:       `{"error":{"message":"Incorrect API key provided."}}`,
		}

		out, ok := StripUnsupported(payload, apiErr)
		Expect(ok).To(BeFalse())
		Expect(out).To(Equal(payload))
	})

	It("never retries server errors", func() {
		apiErr := &APIError{
			StatusCode: 503,
			Body:       `temperature not supported`,
		}

		_, ok := StripUnsupported(payload, apiErr)
		Expect(ok).To(BeFalse())
	})

	It("reports no change when the named field is already absent", func() {
		bare := []byte(`{"model":"m","messages":[],"stream":true}`)
		apiErr := &APIError{
			StatusCode: 400,
			Body:       `{"error":{"message":"Unsupported parameter: temperature"}}`,
		}

		_, ok := StripUnsupported(bare, apiErr)
		Expect(ok).To(BeFalse())
	})
})
