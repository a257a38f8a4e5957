package mocks

// SinaQuote is the subset of a hq.sinajs.cn line the mock fills in.
// Fields the parser ignores are padded with zeros.
type SinaQuote struct {
	Name     string
	Open     string
	PreClose string
	Price    string
	High     string
	Low      string
	Volume   string
	Amount   string
	Date     string
	Time     string
}

// NewsItem is one entry of the Sina per-stock news list.
type NewsItem struct {
	Date  string
	Title string
	URL   string
}

// ChatCompletionRequest is the part of an OpenAI-compatible request the
// mock inspects.
type ChatCompletionRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// ChatCompletionResponse is a minimal OpenAI-compatible response.
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   ChatUsage    `json:"usage"`
}

type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// APIErrorResponse mirrors the OpenAI error envelope.
type APIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
