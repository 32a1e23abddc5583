// 版权所有 2024 CareerFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 是辅导智能体使用的大模型接入层。

# 核心类型

  - [Provider]：补全、健康检查与名称
  - [ChatRequest] / [ChatResponse]：与 OpenAI Chat Completions 对齐的请求响应
  - [Error]：带错误码与可重试标记的上游错误
  - [RetryingProvider]：对可重试错误做指数退避

# 子包

  - providers/openai：OpenAI 兼容接口与 Azure OpenAI 部署
  - embedding：文本向量化
  - tokenizer：tiktoken 计数与上下文裁剪
  - tools：工具注册、限流执行与 Brave 搜索
  - observability：OpenTelemetry 指标与链路
  - retry：退避重试
*/
package llm
