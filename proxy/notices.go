package proxy

// Status text injected into the outgoing stream. Failures short of pure
// client-input errors are delivered inside the stream as readable bilingual
// text plus the terminal marker, so the client UI can render a graceful
// failure message and re-enable input.
const (
	noticeSearching     = "🔍 正在搜索网页… / Searching the web…\n"
	noticeSynthesizing  = "✅ 搜索完成，正在整理回答… / Search complete, composing the answer…\n"
	noticeStillWorking  = "⏳ 仍在处理中，请稍候… / Still working, hang tight…\n"
	noticeTimeout       = "⌛ 请求超时，请稍后重试。/ The request timed out, please try again."
	noticeUpstreamError = "⚠️ 上游服务返回错误。/ The upstream service returned an error."
	noticeNetworkError  = "⚠️ 无法连接上游服务。/ Could not reach the upstream service."
	noticeInterrupted   = "⚠️ 连接中断。/ The connection was interrupted."
)

// noticeSearchResults is the intermediate tool-progress notice; the verb
// argument is the result count.
const noticeSearchResults = "📄 找到 %d 条结果，正在阅读… / Found %d results, reading…\n"

// noticeUnknownEvent is only emitted when debug events are enabled.
const noticeUnknownEvent = "[未识别事件 unknown event: %s]\n"
